package model

import "time"

// Robot is a registered robot and the command currently steering its simulation.
type Robot struct {
	ID             string    `gorm:"primaryKey;size:50" json:"id"`
	Name           string    `gorm:"size:100" json:"name"`
	Description    string    `gorm:"size:255" json:"description,omitempty"`
	Location       string    `gorm:"size:100" json:"location,omitempty"`
	IsActive       bool      `json:"is_active"`
	CurrentCommand Command   `gorm:"size:20" json:"current_command,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Robot) TableName() string { return "robots" }

// DefaultRobot is registered on startup when the store has no robot yet.
func DefaultRobot() Robot {
	return Robot{
		ID:          DefaultRobotID,
		Name:        "Primary Robot",
		Description: "Default simulated robot",
		Location:    "Main Floor",
		IsActive:    true,
	}
}

// RobotSummary is the per-robot row of the fleet overview.
type RobotSummary struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Location    string     `json:"location,omitempty"`
	Status      string     `json:"status"`
	Battery     *int       `json:"battery"`
	Temperature *float64   `json:"temperature"`
	LastUpdate  *time.Time `json:"last_update"`
}
