package api

import (
	"time"

	"robot-telemetry/pkg/foxglove"
	"robot-telemetry/pkg/model"
)

// listResponse is the {count, data} shape of history endpoints.
type listResponse[T any] struct {
	RobotID string `json:"robot_id,omitempty"`
	Count   int    `json:"count"`
	Data    []T    `json:"data"`
}

type robotsResponse[T any] struct {
	Count  int `json:"count"`
	Robots []T `json:"robots"`
}

type robotResponse struct {
	Message string      `json:"message"`
	Robot   model.Robot `json:"robot"`
}

type robotDetail struct {
	model.Robot
	LatestTelemetry *model.TelemetrySample `json:"latest_telemetry,omitempty"`
}

// robotRequest carries registration and partial updates; nil fields are left unchanged.
type robotRequest struct {
	ID          string  `json:"id"`
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Location    *string `json:"location"`
	IsActive    *bool   `json:"is_active"`
}

type statusResponse struct {
	Status    string `json:"status"`
	IsRunning bool   `json:"is_running"`
}

type healthResponse struct {
	Status           string    `json:"status"`
	WebsocketClients int       `json:"websocket_clients"`
	Version          string    `json:"version"`
	Time             time.Time `json:"time"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type foxgloveMessages struct {
	Count    int                `json:"count,omitempty"`
	Messages []foxglove.Message `json:"messages"`
}

type channelsResponse struct {
	Count    int                `json:"count"`
	Channels []foxglove.Channel `json:"channels"`
}

type schemaResponse struct {
	Topic      string `json:"topic"`
	SchemaName string `json:"schemaName"`
	Schema     string `json:"schema"`
}
