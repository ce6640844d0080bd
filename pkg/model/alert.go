package model

import "time"

// Severity ranks an alert.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert categories.
const (
	CategoryOverheat        = "overheat"
	CategoryHighTemperature = "high-temperature"
	CategoryLowBattery      = "low-battery"
	CategoryFault           = "fault"
)

// AlertEvent is derived from a sample crossing a threshold. It is delivered once and never stored.
type AlertEvent struct {
	Category  string    `json:"category"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	RobotID   string    `json:"robot_id"`
	Threshold float64   `json:"threshold,omitempty"`
	Value     any       `json:"value,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
