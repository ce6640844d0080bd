package dashboard_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"robot-telemetry/pkg/api"
	"robot-telemetry/pkg/command"
	"robot-telemetry/pkg/dashboard"
	"robot-telemetry/pkg/hub"
	"robot-telemetry/pkg/metrics"
	"robot-telemetry/pkg/model"
	"robot-telemetry/pkg/simulator"
	"robot-telemetry/pkg/store"
)

type frames struct {
	mu   sync.Mutex
	last dashboard.Snapshot
}

func (f *frames) Render(s dashboard.Snapshot) {
	f.mu.Lock()
	f.last = s
	f.mu.Unlock()
}

func (f *frames) get() dashboard.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestClientAgainstController(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	fleet := simulator.NewFleet(simulator.Options{Seed: 11})
	robot, err := st.EnsureRobot(ctx, model.DefaultRobot())
	if err != nil {
		t.Fatal(err)
	}
	fleet.Upsert(robot)
	h := hub.New(hub.Options{HistoryCapacity: 20, Archive: st})
	defer h.Close()

	mux := http.NewServeMux()
	api.RegisterRoutes(mux, api.Deps{
		Hub:      h,
		Fleet:    fleet,
		Store:    st,
		Commands: command.New(fleet, st, h, metrics.Nop{}),
	})
	var pushDown atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" && pushDown.Load() {
			http.Error(w, "push disabled", http.StatusServiceUnavailable)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	defer srv.Close()

	var newest atomic.Int64
	produce := func() {
		for _, s := range fleet.TickAll() {
			stored, err := st.InsertSample(ctx, s)
			if err != nil {
				t.Error(err)
				return
			}
			h.Publish(stored)
			newest.Store(stored.Timestamp.UnixNano())
		}
	}
	showsNewest := func(f *frames) bool {
		produce()
		l := f.get().Latest
		return l != nil && l.Timestamp.UnixNano() == newest.Load()
	}

	push, err := dashboard.NewWSPush(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	out := &frames{}
	client := dashboard.New(push, dashboard.NewHTTPPull(srv.URL, nil), out, dashboard.Options{
		PollInterval:    50 * time.Millisecond,
		HistoryInterval: 200 * time.Millisecond,
		ReconnectDelay:  100 * time.Millisecond,
		MaxReconnects:   1,
		FeedbackTTL:     time.Second,
	})
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- client.Run(runCtx) }()

	waitFor(t, "push connection", func() bool { return client.State() == dashboard.PushConnected })
	waitFor(t, "live sample", func() bool { return showsNewest(out) })

	client.Submit("start")
	waitFor(t, "command feedback", func() bool {
		fb := out.get().Feedback
		return fb != nil && fb.Success && fb.Message == "Robot started"
	})
	if !fleet.Running(model.DefaultRobotID) {
		t.Fatal("robot not running after start")
	}

	pushDown.Store(true)
	h.Close()
	waitFor(t, "polling fallback", func() bool { return client.State() == dashboard.Polling })
	waitFor(t, "polled sample", func() bool { return showsNewest(out) })

	snap := out.get()
	for i := 1; i < len(snap.Rows); i++ {
		if !snap.Rows[i-1].Timestamp.After(snap.Rows[i].Timestamp) {
			t.Fatalf("rows %d and %d not strictly newest first", i-1, i)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
