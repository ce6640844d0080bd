package model

import "time"

// CommandRecord is the audit row written for every submitted command.
type CommandRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RobotID    string    `gorm:"size:50;index;default:robot_001" json:"robot_id"`
	Command    string    `gorm:"size:50" json:"command"`
	Success    bool      `json:"success"`
	Message    string    `gorm:"size:255" json:"message,omitempty"`
	ExecutedAt time.Time `gorm:"index" json:"executed_at"`
}

func (CommandRecord) TableName() string { return "commands" }
