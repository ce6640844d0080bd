package model

import "time"

// DefaultRobotID is used whenever a request or row carries no robot id.
const DefaultRobotID = "robot_001"

// Status is the operating state reported by a robot.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusWorking Status = "working"
	StatusError   Status = "error"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusIdle, StatusWorking, StatusError:
		return true
	}
	return false
}

// TelemetrySample is a single reading produced for one robot on one tick.
type TelemetrySample struct {
	ID          uint      `gorm:"primaryKey" json:"id,omitempty"`
	RobotID     string    `gorm:"size:50;index:idx_telemetry_robot_ts,priority:1;default:robot_001" json:"robot_id"`
	Temperature float64   `json:"temperature"`
	Battery     int       `json:"battery"`
	MotorRPM    int       `json:"motor_rpm"`
	Status      Status    `gorm:"size:20" json:"status"`
	Timestamp   time.Time `gorm:"index:idx_telemetry_robot_ts,priority:2" json:"timestamp"`
}

// TableName keeps the table name used by the dashboard database.
func (TelemetrySample) TableName() string { return "telemetry" }
