package model

import (
	"encoding/json"
	"time"
)

// Push channel message types.
const (
	MsgConnectionStatus = "connection_status"
	MsgTelemetryUpdate  = "telemetry_update"
	MsgAlert            = "alert"
	MsgCommandResult    = "command_result"
	MsgSubscribed       = "subscribed"
	MsgUnsubscribed     = "unsubscribed"
	MsgPong             = "pong"
	MsgError            = "error"

	MsgSubscribe   = "subscribe"
	MsgUnsubscribe = "unsubscribe"
	MsgPing        = "ping"
	MsgCommand     = "command"
)

// WSMessage is the envelope for every push channel frame.
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// InboundMessage is a received frame whose payload is decoded lazily.
type InboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ChannelRequest is the payload of subscribe/unsubscribe.
type ChannelRequest struct {
	Channel string `json:"channel"`
}

// CommandRequest is the payload of a command sent over REST or the push channel.
type CommandRequest struct {
	Command string `json:"command"`
	RobotID string `json:"robot_id,omitempty"`
}

// ConnectionStatus is sent once a session is registered.
type ConnectionStatus struct {
	Status   string `json:"status"`
	ClientID string `json:"client_id"`
	Message  string `json:"message,omitempty"`
}

// ErrorMessage reports a rejected inbound frame.
type ErrorMessage struct {
	Message string `json:"message"`
}

// Pong answers a ping with the server time.
type Pong struct {
	Timestamp time.Time `json:"timestamp"`
}
