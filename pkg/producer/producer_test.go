package producer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"robot-telemetry/pkg/model"
	"robot-telemetry/pkg/store"
)

type fixedSource struct {
	mu    sync.Mutex
	ticks int
}

func (f *fixedSource) TickAll() []model.TelemetrySample {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks++
	ts := time.Date(2024, 5, 1, 12, 0, f.ticks, 0, time.UTC)
	return []model.TelemetrySample{
		{RobotID: model.DefaultRobotID, Temperature: 60, Battery: 50, Status: model.StatusWorking, Timestamp: ts},
		{RobotID: "robot_002", Temperature: 40, Battery: 50, Status: model.StatusIdle, Timestamp: ts},
	}
}

type recordingPublisher struct {
	mu  sync.Mutex
	got []model.TelemetrySample
}

func (p *recordingPublisher) Publish(s model.TelemetrySample) []model.AlertEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, s)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.got)
}

type failingStore struct{ *store.MemoryStore }

func (failingStore) InsertSample(context.Context, model.TelemetrySample) (model.TelemetrySample, error) {
	return model.TelemetrySample{}, errors.New("disk full")
}

func TestStepStoresThenPublishes(t *testing.T) {
	st := store.NewMemoryStore()
	pub := &recordingPublisher{}
	l := &Loop{Source: &fixedSource{}, Store: st, Publisher: pub}
	out := l.Step(context.Background())
	if len(out) != 2 || pub.count() != 2 {
		t.Fatalf("expected two samples, got %d published %d", len(out), pub.count())
	}
	if pub.got[0].ID == 0 {
		t.Fatal("published sample should carry the stored id")
	}
	rows, _ := st.RecentSamples(context.Background(), store.SampleQuery{RobotID: "robot_002"})
	if len(rows) != 1 {
		t.Fatalf("expected archived sample, got %d", len(rows))
	}
}

func TestStoreFailureDoesNotStopDistribution(t *testing.T) {
	pub := &recordingPublisher{}
	l := &Loop{Source: &fixedSource{}, Store: failingStore{store.NewMemoryStore()}, Publisher: pub}
	l.Step(context.Background())
	if pub.count() != 2 {
		t.Fatalf("expected publish despite store failure, got %d", pub.count())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	pub := &recordingPublisher{}
	l := &Loop{Source: &fixedSource{}, Publisher: pub, Interval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for pub.count() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if pub.count() < 4 {
		t.Fatalf("expected several ticks, got %d", pub.count())
	}
}
