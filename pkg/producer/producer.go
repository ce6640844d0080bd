package producer

import (
	"context"
	"log"
	"time"

	"robot-telemetry/pkg/metrics"
	"robot-telemetry/pkg/model"
	"robot-telemetry/pkg/store"
)

// DefaultInterval between two production ticks.
const DefaultInterval = 2 * time.Second

const insertTimeout = 2 * time.Second

// Source yields one sample per active robot each tick.
type Source interface {
	TickAll() []model.TelemetrySample
}

// Publisher distributes a sample and returns the alerts it raised.
type Publisher interface {
	Publish(s model.TelemetrySample) []model.AlertEvent
}

// Loop is the single writer of telemetry: it ticks the source, archives and publishes.
type Loop struct {
	Source    Source
	Store     store.Store // optional
	Publisher Publisher
	Interval  time.Duration
	Observer  metrics.Observer
}

// Run ticks until ctx is done.
func (l *Loop) Run(ctx context.Context) {
	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	log.Printf("telemetry producer started (interval=%s)", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("telemetry producer stopped")
			return
		case <-ticker.C:
			l.Step(ctx)
		}
	}
}

// Step runs one production round and returns the samples it published.
func (l *Loop) Step(ctx context.Context) []model.TelemetrySample {
	samples := l.Source.TickAll()
	for i, s := range samples {
		if l.Store != nil {
			ictx, cancel := context.WithTimeout(ctx, insertTimeout)
			stored, err := l.Store.InsertSample(ictx, s)
			cancel()
			if err != nil {
				l.observer().StoreError("insert_sample")
				log.Printf("store telemetry robot=%s: %v", s.RobotID, err)
			} else {
				samples[i] = stored
				s = stored
			}
		}
		for _, a := range l.Publisher.Publish(s) {
			log.Printf("WARN alert robot=%s %s/%s: %s", a.RobotID, a.Category, a.Severity, a.Message)
		}
	}
	return samples
}

func (l *Loop) observer() metrics.Observer {
	if l.Observer == nil {
		return metrics.Nop{}
	}
	return l.Observer
}
