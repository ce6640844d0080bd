package model

import "strings"

// Command is a control instruction for a simulated robot.
type Command string

const (
	CommandStart Command = "start"
	CommandStop  Command = "stop"
	CommandReset Command = "reset"
)

// ValidCommands lists accepted commands in display order.
var ValidCommands = []Command{CommandStart, CommandStop, CommandReset}

// ParseCommand normalizes raw input and reports whether it names a known command.
func ParseCommand(raw string) (Command, bool) {
	c := Command(strings.ToLower(strings.TrimSpace(raw)))
	for _, v := range ValidCommands {
		if c == v {
			return c, true
		}
	}
	return c, false
}

// CommandResult is returned to the session that issued a command.
type CommandResult struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Command Command `json:"command,omitempty"`
	RobotID string  `json:"robot_id,omitempty"`
}
