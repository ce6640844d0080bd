package history

import (
	"errors"

	"robot-telemetry/pkg/model"
)

// DefaultCapacity is the number of samples kept per robot.
const DefaultCapacity = 50

// ErrOutOfOrder is returned when a sample is older than the newest one already held.
var ErrOutOfOrder = errors.New("sample older than newest entry")

// Ring is a fixed-capacity FIFO of samples ordered by timestamp. It is not safe for concurrent use.
type Ring struct {
	items []model.TelemetrySample
	start int
	size  int
}

// NewRing creates a ring holding at most capacity samples (DefaultCapacity if capacity <= 0).
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{items: make([]model.TelemetrySample, capacity)}
}

func (r *Ring) Cap() int { return len(r.items) }
func (r *Ring) Len() int { return r.size }

// Push appends s, evicting the oldest entry when full.
func (r *Ring) Push(s model.TelemetrySample) error {
	if last, ok := r.Last(); ok && s.Timestamp.Before(last.Timestamp) {
		return ErrOutOfOrder
	}
	if r.size < len(r.items) {
		r.items[(r.start+r.size)%len(r.items)] = s
		r.size++
		return nil
	}
	r.items[r.start] = s
	r.start = (r.start + 1) % len(r.items)
	return nil
}

// Last returns the newest sample.
func (r *Ring) Last() (model.TelemetrySample, bool) {
	if r.size == 0 {
		return model.TelemetrySample{}, false
	}
	return r.items[(r.start+r.size-1)%len(r.items)], true
}

// Recent returns up to limit newest samples, oldest first. limit <= 0 returns everything.
func (r *Ring) Recent(limit int) []model.TelemetrySample {
	n := r.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.TelemetrySample, 0, n)
	for i := r.size - n; i < r.size; i++ {
		out = append(out, r.items[(r.start+i)%len(r.items)])
	}
	return out
}
