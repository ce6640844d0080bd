package dashboard

import (
	"time"

	"robot-telemetry/pkg/model"
)

// State is the client's connection state.
type State int32

const (
	Connecting State = iota
	PushConnected
	Polling
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case PushConnected:
		return "live"
	case Polling:
		return "polling"
	}
	return "unknown"
}

const (
	DefaultPollInterval    = 2 * time.Second
	DefaultHistoryInterval = 10 * time.Second
	DefaultReconnectDelay  = 3 * time.Second
	DefaultMaxReconnects   = 5
	DefaultFeedbackTTL     = 3 * time.Second
	DefaultHistorySize     = 50
	DefaultTableRows       = 10
	maxAlerts              = 20
)

// Options tunes the client. Zero values take the defaults above.
type Options struct {
	RobotID         string
	HistorySize     int
	TableRows       int
	PollInterval    time.Duration
	HistoryInterval time.Duration
	ReconnectDelay  time.Duration
	MaxReconnects   int
	FeedbackTTL     time.Duration
	Clock           Clock
}

func (o Options) withDefaults() Options {
	if o.RobotID == "" {
		o.RobotID = model.DefaultRobotID
	}
	if o.HistorySize <= 0 {
		o.HistorySize = DefaultHistorySize
	}
	if o.TableRows <= 0 {
		o.TableRows = DefaultTableRows
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.HistoryInterval <= 0 {
		o.HistoryInterval = DefaultHistoryInterval
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = DefaultReconnectDelay
	}
	if o.MaxReconnects <= 0 {
		o.MaxReconnects = DefaultMaxReconnects
	}
	if o.FeedbackTTL <= 0 {
		o.FeedbackTTL = DefaultFeedbackTTL
	}
	if o.Clock == nil {
		o.Clock = realClock{}
	}
	return o
}

// Feedback is the transient outcome of the last command.
type Feedback struct {
	Success bool
	Message string
}

// Snapshot is everything a renderer needs to draw one frame.
type Snapshot struct {
	RobotID     string
	State       State
	Reconnects  int
	Labels      []string
	Temperature []float64
	Battery     []int
	MotorRPM    []int
	// Rows holds the newest samples first.
	Rows     []model.TelemetrySample
	Latest   *model.TelemetrySample
	Alerts   []model.AlertEvent
	Feedback *Feedback
}

// Renderer draws snapshots. Render is called from the client's event loop and must not block.
type Renderer interface {
	Render(Snapshot)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Snapshot)

func (f RendererFunc) Render(s Snapshot) { f(s) }
