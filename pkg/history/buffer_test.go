package history

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"robot-telemetry/pkg/model"
)

var base = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func sampleAt(robot string, offset int) model.TelemetrySample {
	return model.TelemetrySample{
		RobotID:   robot,
		Battery:   offset % 100,
		Status:    model.StatusIdle,
		Timestamp: base.Add(time.Duration(offset) * time.Second),
	}
}

func TestRingCapacityAndOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		capacity := 1 + rng.Intn(10)
		r := NewRing(capacity)
		offset := 0
		for i := 0; i < rng.Intn(40); i++ {
			offset += rng.Intn(3) // equal timestamps allowed
			if err := r.Push(sampleAt("r", offset)); err != nil {
				t.Fatalf("push: %v", err)
			}
			if r.Len() > capacity {
				t.Fatalf("len %d exceeds capacity %d", r.Len(), capacity)
			}
			items := r.Recent(0)
			for j := 1; j < len(items); j++ {
				if items[j].Timestamp.Before(items[j-1].Timestamp) {
					t.Fatalf("entries out of order at %d", j)
				}
			}
		}
	}
}

func TestRingEvictsOldest(t *testing.T) {
	r := NewRing(3)
	for i := 0; i < 5; i++ {
		_ = r.Push(sampleAt("r", i))
	}
	got := r.Recent(0)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if !got[0].Timestamp.Equal(base.Add(2*time.Second)) || !got[2].Timestamp.Equal(base.Add(4*time.Second)) {
		t.Fatalf("unexpected window: %v .. %v", got[0].Timestamp, got[2].Timestamp)
	}
	if last, _ := r.Last(); !last.Timestamp.Equal(got[2].Timestamp) {
		t.Fatalf("last mismatch")
	}
}

func TestRingRejectsOlderSample(t *testing.T) {
	r := NewRing(3)
	_ = r.Push(sampleAt("r", 5))
	if err := r.Push(sampleAt("r", 4)); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("expected ErrOutOfOrder, got %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("rejected sample was stored")
	}
}

func TestBufferRecentLimit(t *testing.T) {
	b := NewBuffer(10)
	for i := 0; i < 8; i++ {
		if err := b.Append("robot_001", sampleAt("robot_001", i)); err != nil {
			t.Fatal(err)
		}
	}
	got := b.Recent("robot_001", 3)
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	if !got[2].Timestamp.Equal(base.Add(7 * time.Second)) {
		t.Fatalf("newest should be last, got %v", got[2].Timestamp)
	}
	if !got[0].Timestamp.Equal(base.Add(5 * time.Second)) {
		t.Fatalf("oldest of window should be first, got %v", got[0].Timestamp)
	}
}

func TestBufferUnknownRobot(t *testing.T) {
	b := NewBuffer(5)
	got := b.Recent("nobody", 10)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
	if _, ok := b.Latest("nobody"); ok {
		t.Fatal("expected no latest sample")
	}
}

func TestBufferAppendUsesSampleRobot(t *testing.T) {
	b := NewBuffer(5)
	_ = b.Append("", sampleAt("robot_002", 1))
	if b.Len("robot_002") != 1 {
		t.Fatalf("sample not filed under its robot id")
	}
}

func TestBufferConcurrentAppends(t *testing.T) {
	b := NewBuffer(20)
	var wg sync.WaitGroup
	robots := []string{"a", "b", "c"}
	for _, id := range robots {
		wg.Add(2)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				_ = b.Append(id, sampleAt(id, i))
			}
		}(id)
		go func(id string) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				items := b.Recent(id, 0)
				for j := 1; j < len(items); j++ {
					if items[j].Timestamp.Before(items[j-1].Timestamp) {
						t.Errorf("robot %s out of order", id)
						return
					}
				}
			}
		}(id)
	}
	wg.Wait()
	for _, id := range robots {
		if n := b.Len(id); n != 20 {
			t.Fatalf("robot %s: expected 20 entries, got %d", id, n)
		}
	}
}
