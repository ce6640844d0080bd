package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"robot-telemetry/pkg/command"
	"robot-telemetry/pkg/foxglove"
	"robot-telemetry/pkg/hub"
	"robot-telemetry/pkg/model"
	"robot-telemetry/pkg/simulator"
	"robot-telemetry/pkg/store"
	"robot-telemetry/pkg/version"
)

// Query limits.
const (
	defaultHistoryLimit  = 50
	maxHistoryLimit      = 500
	defaultCommandsLimit = 20
	maxCommandsLimit     = 100
	defaultExportLimit   = 100
	maxExportLimit       = 1000
)

// SessionHeader lets a REST command caller also receive the result on its push session.
const SessionHeader = "X-Session-ID"

// Deps are the collaborators served by the HTTP surface.
type Deps struct {
	Hub      *hub.Hub
	Fleet    *simulator.Fleet
	Store    store.Store
	Commands *command.Channel
	Bridge   *foxglove.Bridge
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// WebDir is served at / when set.
	WebDir string
}

type server struct {
	Deps
}

// RegisterRoutes wires the HTTP handlers on the provided mux.
func RegisterRoutes(mux *http.ServeMux, d Deps) {
	s := &server{Deps: d}

	if d.WebDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(d.WebDir)))
	} else {
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/" {
				http.NotFound(w, r)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("robot telemetry controller"))
		})
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{
			Status:           "healthy",
			WebsocketClients: s.Hub.SessionCount(),
			Version:          version.Build,
			Time:             time.Now().UTC(),
		})
	})
	if d.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("/ws", NewWSServer(d.Hub, d.Commands).HandleWS)
	mux.HandleFunc("/api/telemetry/latest", s.handleLatest)
	mux.HandleFunc("/api/telemetry/history", s.handleHistory)
	mux.HandleFunc("/api/robot/command", s.handleCommand)
	mux.HandleFunc("/api/robot/status", s.handleStatus)
	mux.HandleFunc("/api/commands/history", s.handleCommandHistory)

	s.registerRobots(mux)
	s.registerFoxglove(mux)
}

func (s *server) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	robotID := robotParam(r)
	sample, ok := s.latest(r.Context(), robotID)
	if !ok {
		// nothing produced yet: describe the current simulated state
		sample, ok = s.Fleet.Snapshot(robotID)
	}
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("No telemetry data for robot '%s'", robotID))
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (s *server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	limit := intParam(q.Get("limit"), defaultHistoryLimit, maxHistoryLimit)
	since, err := parseDate(q.Get("start_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format: "+err.Error())
		return
	}
	until, err := parseDate(q.Get("end_date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format: "+err.Error())
		return
	}
	data, err := s.history(r.Context(), store.SampleQuery{RobotID: robotParam(r), Limit: limit, Since: since, Until: until})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, listResponse[model.TelemetrySample]{Count: len(data), Data: data})
}

func (s *server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req model.CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, model.CommandResult{Message: "invalid payload"})
		return
	}
	s.execute(w, r, req.RobotID, req.Command)
}

func (s *server) execute(w http.ResponseWriter, r *http.Request, robotID, raw string) {
	res, err := s.Commands.Execute(r.Context(), r.Header.Get(SessionHeader), robotID, raw)
	status := http.StatusOK
	switch {
	case errors.Is(err, command.ErrRobotNotFound):
		status = http.StatusNotFound
	case errors.Is(err, command.ErrInvalidCommand), errors.Is(err, command.ErrRobotInactive):
		status = http.StatusBadRequest
	case err != nil:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, res)
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	robotID := robotParam(r)
	status := "unknown"
	if sample, ok := s.latest(r.Context(), robotID); ok {
		status = string(sample.Status)
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: status, IsRunning: s.Fleet.Running(robotID)})
}

func (s *server) handleCommandHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	limit := intParam(q.Get("limit"), defaultCommandsLimit, maxCommandsLimit)
	recs, err := s.Store.ListCommands(r.Context(), q.Get("robot_id"), limit)
	if err != nil {
		log.Printf("list commands failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list commands")
		return
	}
	writeJSON(w, http.StatusOK, listResponse[model.CommandRecord]{Count: len(recs), Data: recs})
}

// latest prefers the in-memory buffer and falls back to the store.
func (s *server) latest(ctx context.Context, robotID string) (model.TelemetrySample, bool) {
	if sample, ok := s.Hub.Latest(robotID); ok {
		return sample, true
	}
	sample, err := s.Store.LatestSample(ctx, robotID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("latest sample robot=%s: %v", robotID, err)
		}
		return model.TelemetrySample{}, false
	}
	return sample, true
}

// history returns samples newest first. Plain limit queries go through the hub; date ranges go to the store.
func (s *server) history(ctx context.Context, q store.SampleQuery) ([]model.TelemetrySample, error) {
	if q.Since.IsZero() && q.Until.IsZero() {
		rows, err := s.Hub.History(ctx, q.RobotID, q.Limit)
		if err != nil {
			return nil, err
		}
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
		return rows, nil
	}
	return s.Store.RecentSamples(ctx, q)
}

func robotParam(r *http.Request) string {
	if id := r.URL.Query().Get("robot_id"); id != "" {
		return id
	}
	return model.DefaultRobotID
}

// intParam parses a positive limit, applying def when missing or invalid and capping at max.
func intParam(raw string, def, max int) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		n = def
	}
	if n > max {
		n = max
	}
	return n
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04", "2006-01-02"}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
