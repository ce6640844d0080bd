package history

import (
	"sync"

	"robot-telemetry/pkg/model"
)

type robotRing struct {
	mu   sync.Mutex
	ring *Ring
}

// Buffer keeps the most recent samples of every robot. Appends and reads of one robot are
// serialized by that robot's lock; different robots do not contend.
type Buffer struct {
	capacity int
	mu       sync.RWMutex
	robots   map[string]*robotRing
}

func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity, robots: make(map[string]*robotRing)}
}

// Capacity is the per-robot limit.
func (b *Buffer) Capacity() int { return b.capacity }

// Append stores s under robotID (the sample's own id when robotID is empty).
func (b *Buffer) Append(robotID string, s model.TelemetrySample) error {
	if robotID == "" {
		robotID = s.RobotID
	}
	rr := b.ringFor(robotID, true)
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.ring.Push(s)
}

// Recent returns up to limit newest samples of robotID, oldest first. Unknown robots yield an empty slice.
func (b *Buffer) Recent(robotID string, limit int) []model.TelemetrySample {
	rr := b.ringFor(robotID, false)
	if rr == nil {
		return []model.TelemetrySample{}
	}
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.ring.Recent(limit)
}

// Latest returns the newest sample of robotID.
func (b *Buffer) Latest(robotID string) (model.TelemetrySample, bool) {
	rr := b.ringFor(robotID, false)
	if rr == nil {
		return model.TelemetrySample{}, false
	}
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.ring.Last()
}

// Len reports how many samples are held for robotID.
func (b *Buffer) Len(robotID string) int {
	rr := b.ringFor(robotID, false)
	if rr == nil {
		return 0
	}
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return rr.ring.Len()
}

func (b *Buffer) ringFor(robotID string, create bool) *robotRing {
	b.mu.RLock()
	rr := b.robots[robotID]
	b.mu.RUnlock()
	if rr != nil || !create {
		return rr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if rr = b.robots[robotID]; rr == nil {
		rr = &robotRing{ring: NewRing(b.capacity)}
		b.robots[robotID] = rr
	}
	return rr
}
