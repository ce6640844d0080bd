package store

import (
	"context"
	"errors"
	"time"

	"robot-telemetry/pkg/model"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// SampleQuery selects telemetry rows of one robot. Zero Since/Until leave that bound open;
// Limit <= 0 means no limit.
type SampleQuery struct {
	RobotID string
	Limit   int
	Since   time.Time
	Until   time.Time
}

// Store persists robots, telemetry and the command audit trail.
// Sample queries return rows newest first.
type Store interface {
	// EnsureRobot creates r unless a robot with the same id exists and returns the stored row.
	EnsureRobot(ctx context.Context, r model.Robot) (model.Robot, error)
	CreateRobot(ctx context.Context, r model.Robot) (model.Robot, error)
	UpdateRobot(ctx context.Context, r model.Robot) (model.Robot, error)
	GetRobot(ctx context.Context, id string) (model.Robot, error)
	ListRobots(ctx context.Context, activeOnly bool) ([]model.Robot, error)

	InsertSample(ctx context.Context, s model.TelemetrySample) (model.TelemetrySample, error)
	LatestSample(ctx context.Context, robotID string) (model.TelemetrySample, error)
	RecentSamples(ctx context.Context, q SampleQuery) ([]model.TelemetrySample, error)

	InsertCommand(ctx context.Context, c model.CommandRecord) (model.CommandRecord, error)
	ListCommands(ctx context.Context, robotID string, limit int) ([]model.CommandRecord, error)

	Close() error
}

func robotIDOrDefault(id string) string {
	if id == "" {
		return model.DefaultRobotID
	}
	return id
}

func (q SampleQuery) matches(s model.TelemetrySample) bool {
	if !q.Since.IsZero() && s.Timestamp.Before(q.Since) {
		return false
	}
	if !q.Until.IsZero() && s.Timestamp.After(q.Until) {
		return false
	}
	return true
}
