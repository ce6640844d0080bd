package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"robot-telemetry/pkg/command"
	"robot-telemetry/pkg/foxglove"
	"robot-telemetry/pkg/hub"
	"robot-telemetry/pkg/metrics"
	"robot-telemetry/pkg/model"
	"robot-telemetry/pkg/simulator"
	"robot-telemetry/pkg/store"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
	return c.t
}

type testEnv struct {
	mux   *http.ServeMux
	hub   *hub.Hub
	fleet *simulator.Fleet
	store *store.MemoryStore
	clock *testClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{clock: &testClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}}
	reg := prometheus.NewRegistry()
	obs := metrics.NewProm(reg)
	env.store = store.NewMemoryStore()
	env.fleet = simulator.NewFleet(simulator.Options{Seed: 3, Now: env.clock.Now})
	robot, err := env.store.EnsureRobot(context.Background(), model.DefaultRobot())
	if err != nil {
		t.Fatal(err)
	}
	env.fleet.Upsert(robot)
	env.hub = hub.New(hub.Options{HistoryCapacity: 10, Archive: env.store, Observer: obs})
	t.Cleanup(env.hub.Close)
	env.mux = http.NewServeMux()
	RegisterRoutes(env.mux, Deps{
		Hub:      env.hub,
		Fleet:    env.fleet,
		Store:    env.store,
		Commands: command.New(env.fleet, env.store, env.hub, obs),
		Bridge:   foxglove.NewBridge("", env.clock.Now()),
		Gatherer: reg,
	})
	return env
}

// produce runs n production rounds two seconds apart.
func (e *testEnv) produce(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		e.clock.Advance(2 * time.Second)
		for _, s := range e.fleet.TickAll() {
			stored, err := e.store.InsertSample(context.Background(), s)
			if err != nil {
				t.Fatal(err)
			}
			e.hub.Publish(stored)
		}
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec.Code, rec.Body.Bytes()
}

func decode[T any](t *testing.T, b []byte) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("decode %s: %v", b, err)
	}
	return v
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	code, body := env.do(t, http.MethodGet, "/health", nil)
	h := decode[healthResponse](t, body)
	if code != http.StatusOK || h.Status != "healthy" || h.WebsocketClients != 0 {
		t.Fatalf("unexpected health %d %s", code, body)
	}
	env.produce(t, 1)
	code, body = env.do(t, http.MethodGet, "/metrics", nil)
	if code != http.StatusOK || !strings.Contains(string(body), "telemetry_samples_published_total 1") {
		t.Fatalf("unexpected metrics %d %s", code, body)
	}
}

func TestLatestTelemetry(t *testing.T) {
	env := newTestEnv(t)
	code, body := env.do(t, http.MethodGet, "/api/telemetry/latest", nil)
	if code != http.StatusOK {
		t.Fatalf("expected simulated snapshot before first tick, got %d %s", code, body)
	}
	env.produce(t, 3)
	code, body = env.do(t, http.MethodGet, "/api/telemetry/latest", nil)
	s := decode[model.TelemetrySample](t, body)
	if code != http.StatusOK || !s.Timestamp.Equal(env.clock.Now()) || s.RobotID != model.DefaultRobotID {
		t.Fatalf("unexpected latest %d %+v", code, s)
	}
	if code, _ := env.do(t, http.MethodGet, "/api/telemetry/latest?robot_id=ghost", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown robot, got %d", code)
	}
	if code, _ := env.do(t, http.MethodPost, "/api/telemetry/latest", nil); code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", code)
	}
}

func TestTelemetryHistory(t *testing.T) {
	env := newTestEnv(t)
	env.produce(t, 15)

	_, body := env.do(t, http.MethodGet, "/api/telemetry/history?limit=5", nil)
	res := decode[listResponse[model.TelemetrySample]](t, body)
	if res.Count != 5 || len(res.Data) != 5 || !res.Data[0].Timestamp.Equal(env.clock.Now()) {
		t.Fatalf("unexpected history %+v", res)
	}
	if !res.Data[0].Timestamp.After(res.Data[4].Timestamp) {
		t.Fatal("history not newest first")
	}

	// beyond the in-memory capacity of 10 the archive answers
	_, body = env.do(t, http.MethodGet, "/api/telemetry/history?limit=5000", nil)
	res = decode[listResponse[model.TelemetrySample]](t, body)
	if res.Count != 15 {
		t.Fatalf("expected all 15 archived samples, got %d", res.Count)
	}

	start := env.clock.Now().Add(-4 * time.Second).Format(time.RFC3339)
	_, body = env.do(t, http.MethodGet, "/api/telemetry/history?start_date="+start, nil)
	res = decode[listResponse[model.TelemetrySample]](t, body)
	if res.Count != 3 {
		t.Fatalf("expected 3 samples since %s, got %d", start, res.Count)
	}

	code, body := env.do(t, http.MethodGet, "/api/telemetry/history?end_date=yesterday", nil)
	if code != http.StatusBadRequest || !strings.Contains(decode[errorResponse](t, body).Error, "Invalid date format") {
		t.Fatalf("unexpected response %d %s", code, body)
	}
}

func TestRobotCommand(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		path    string
		body    any
		code    int
		success bool
		message string
	}{
		{"/api/robot/command", map[string]string{"command": "Start"}, http.StatusOK, true, "Robot started"},
		{"/api/robot/command", map[string]string{"command": "dance"}, http.StatusBadRequest, false, "Invalid command. Valid commands: start, stop, reset"},
		{"/api/robot/command", map[string]string{}, http.StatusBadRequest, false, "Invalid command. Valid commands: start, stop, reset"},
		{"/api/robot/command", map[string]string{"command": "stop", "robot_id": "ghost"}, http.StatusNotFound, false, "Robot 'ghost' not found"},
		{"/api/robots/robot_001/command", map[string]string{"command": "reset"}, http.StatusOK, true, "Robot reset"},
	}
	for _, tc := range cases {
		code, body := env.do(t, http.MethodPost, tc.path, tc.body)
		res := decode[model.CommandResult](t, body)
		if code != tc.code || res.Success != tc.success || res.Message != tc.message {
			t.Fatalf("%s %v: got %d %+v", tc.path, tc.body, code, res)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/robot/command", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	env.mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}

	_, body := env.do(t, http.MethodGet, "/api/commands/history?limit=2", nil)
	hist := decode[listResponse[model.CommandRecord]](t, body)
	if hist.Count != 2 || hist.Data[0].Command != "reset" {
		t.Fatalf("unexpected command history %+v", hist)
	}

	_, body = env.do(t, http.MethodGet, "/api/robot/status", nil)
	st := decode[statusResponse](t, body)
	if !st.IsRunning || st.Status != "unknown" {
		t.Fatalf("unexpected status before ticks %+v", st)
	}
	env.do(t, http.MethodPost, "/api/robot/command", map[string]string{"command": "start"})
	env.produce(t, 1)
	_, body = env.do(t, http.MethodGet, "/api/robot/status", nil)
	if st = decode[statusResponse](t, body); st.Status != string(model.StatusWorking) {
		t.Fatalf("expected working after start, got %+v", st)
	}
}

func TestRobotsLifecycle(t *testing.T) {
	env := newTestEnv(t)
	name := "Welder"
	code, body := env.do(t, http.MethodPost, "/api/robots", robotRequest{ID: "robot_002", Name: &name})
	if code != http.StatusCreated {
		t.Fatalf("create: %d %s", code, body)
	}
	if code, _ := env.do(t, http.MethodPost, "/api/robots", robotRequest{ID: "robot_002", Name: &name}); code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
	if code, _ := env.do(t, http.MethodPost, "/api/robots", robotRequest{ID: "robot_003"}); code != http.StatusBadRequest {
		t.Fatalf("expected 400 without name, got %d", code)
	}

	env.produce(t, 2)
	_, body = env.do(t, http.MethodGet, "/api/robots/robot_002", nil)
	detail := decode[robotDetail](t, body)
	if detail.Name != "Welder" || !detail.IsActive || detail.LatestTelemetry == nil {
		t.Fatalf("unexpected detail %+v", detail)
	}

	loc := "Bay 4"
	code, body = env.do(t, http.MethodPut, "/api/robots/robot_002", robotRequest{Location: &loc})
	upd := decode[robotResponse](t, body)
	if code != http.StatusOK || upd.Robot.Location != "Bay 4" || upd.Robot.Name != "Welder" {
		t.Fatalf("unexpected update %d %+v", code, upd)
	}

	_, body = env.do(t, http.MethodGet, "/api/robots/summary", nil)
	sum := decode[robotsResponse[model.RobotSummary]](t, body)
	if sum.Count != 2 || sum.Robots[1].Battery == nil || sum.Robots[1].LastUpdate == nil {
		t.Fatalf("unexpected summary %+v", sum)
	}

	if code, _ := env.do(t, http.MethodDelete, "/api/robots/robot_002", nil); code != http.StatusOK {
		t.Fatalf("deactivate: %d", code)
	}
	_, body = env.do(t, http.MethodGet, "/api/robots/summary", nil)
	if sum = decode[robotsResponse[model.RobotSummary]](t, body); sum.Count != 1 {
		t.Fatalf("deactivated robot still in summary: %+v", sum)
	}
	code, body = env.do(t, http.MethodPost, "/api/robots/robot_002/command", map[string]string{"command": "start"})
	if code != http.StatusBadRequest || decode[model.CommandResult](t, body).Success {
		t.Fatalf("inactive robot accepted command: %d %s", code, body)
	}
	_, body = env.do(t, http.MethodGet, "/api/robots", nil)
	if all := decode[robotsResponse[model.Robot]](t, body); all.Count != 2 {
		t.Fatalf("expected both robots listed, got %+v", all)
	}
	_, body = env.do(t, http.MethodGet, "/api/robots/robot_002/telemetry/history?limit=10", nil)
	if hist := decode[listResponse[model.TelemetrySample]](t, body); hist.RobotID != "robot_002" || hist.Count != 2 {
		t.Fatalf("unexpected robot history %+v", hist)
	}
	if code, _ := env.do(t, http.MethodGet, "/api/robots/ghost", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if code, _ := env.do(t, http.MethodGet, "/api/robots/ghost/telemetry/latest", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}

func TestFoxgloveRoutes(t *testing.T) {
	env := newTestEnv(t)
	env.produce(t, 4)

	_, body := env.do(t, http.MethodGet, "/api/foxglove/channels", nil)
	if ch := decode[channelsResponse](t, body); ch.Count != 3 {
		t.Fatalf("unexpected channels %+v", ch)
	}
	_, body = env.do(t, http.MethodGet, "/api/foxglove/stream?limit=2", nil)
	if st := decode[foxgloveMessages](t, body); st.Count != 6 {
		t.Fatalf("unexpected stream count %d", st.Count)
	}
	_, body = env.do(t, http.MethodGet, "/api/foxglove/telemetry", nil)
	if m := decode[foxgloveMessages](t, body); len(m.Messages) != 3 {
		t.Fatalf("unexpected latest messages %+v", m)
	}
	_, body = env.do(t, http.MethodGet, "/api/foxglove/export", nil)
	exp := decode[foxglove.Export](t, body)
	if exp.Metadata.MessageCount != 12 || exp.Metadata.DurationSec != 6 {
		t.Fatalf("unexpected export metadata %+v", exp.Metadata)
	}
	code, body := env.do(t, http.MethodGet, "/api/foxglove/schema/robot/pose", nil)
	if sch := decode[schemaResponse](t, body); code != http.StatusOK || sch.SchemaName != "geometry_msgs/PoseStamped" {
		t.Fatalf("unexpected schema %d %+v", code, sch)
	}
	if code, _ := env.do(t, http.MethodGet, "/api/foxglove/schema/lidar", nil); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	_, body = env.do(t, http.MethodGet, "/api/foxglove/info", nil)
	if info := decode[foxglove.ServerInfo](t, body); info.Name == "" || len(info.SupportedEncodings) != 1 {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestIntParamAndDates(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{{"", 50}, {"abc", 50}, {"-3", 50}, {"20", 20}, {"9999", 500}}
	for _, tc := range cases {
		if got := intParam(tc.raw, defaultHistoryLimit, maxHistoryLimit); got != tc.want {
			t.Errorf("intParam(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
	for _, raw := range []string{"2024-05-01", "2024-05-01T10:00:00", "2024-05-01T10:00:00Z", "2024-05-01T10:00:00+02:00"} {
		if _, err := parseDate(raw); err != nil {
			t.Errorf("parseDate(%q): %v", raw, err)
		}
	}
}
