package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"robot-telemetry/pkg/model"
	"robot-telemetry/pkg/store"
)

func (s *server) registerRobots(mux *http.ServeMux) {
	mux.HandleFunc("/api/robots", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.listRobots(w, r)
		case http.MethodPost:
			s.createRobot(w, r)
		default:
			methodNotAllowed(w)
		}
	})
	mux.HandleFunc("GET /api/robots/summary", s.robotsSummary)
	mux.HandleFunc("/api/robots/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			s.getRobot(w, r)
		case http.MethodPut:
			s.updateRobot(w, r)
		case http.MethodDelete:
			s.deactivateRobot(w, r)
		default:
			methodNotAllowed(w)
		}
	})
	mux.HandleFunc("GET /api/robots/{id}/telemetry/latest", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		sample, ok := s.latest(r.Context(), id)
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("No telemetry data for robot '%s'", id))
			return
		}
		writeJSON(w, http.StatusOK, sample)
	})
	mux.HandleFunc("GET /api/robots/{id}/telemetry/history", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		limit := intParam(r.URL.Query().Get("limit"), defaultHistoryLimit, maxHistoryLimit)
		data, err := s.history(r.Context(), store.SampleQuery{RobotID: id, Limit: limit})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, listResponse[model.TelemetrySample]{RobotID: id, Count: len(data), Data: data})
	})
	mux.HandleFunc("POST /api/robots/{id}/command", func(w http.ResponseWriter, r *http.Request) {
		var req model.CommandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, model.CommandResult{Message: "invalid payload", RobotID: r.PathValue("id")})
			return
		}
		s.execute(w, r, r.PathValue("id"), req.Command)
	})
}

func (s *server) listRobots(w http.ResponseWriter, r *http.Request) {
	robots, err := s.Store.ListRobots(r.Context(), false)
	if err != nil {
		log.Printf("list robots failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list robots")
		return
	}
	for i := range robots {
		if live, ok := s.Fleet.Get(robots[i].ID); ok {
			robots[i].CurrentCommand = live.CurrentCommand
		}
	}
	writeJSON(w, http.StatusOK, robotsResponse[model.Robot]{Count: len(robots), Robots: robots})
}

func (s *server) createRobot(w http.ResponseWriter, r *http.Request) {
	var req robotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.ID == "" || req.Name == nil || *req.Name == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: id, name")
		return
	}
	robot := model.Robot{ID: req.ID, IsActive: true}
	req.apply(&robot)
	saved, err := s.Store.CreateRobot(r.Context(), robot)
	if errors.Is(err, store.ErrExists) {
		writeError(w, http.StatusConflict, fmt.Sprintf("Robot with id '%s' already exists", req.ID))
		return
	}
	if err != nil {
		log.Printf("create robot %s failed: %v", req.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to register robot")
		return
	}
	s.Fleet.Upsert(saved)
	log.Printf("robot registered: %s (%s)", saved.ID, saved.Name)
	writeJSON(w, http.StatusCreated, robotResponse{Message: "Robot registered successfully", Robot: saved})
}

func (s *server) getRobot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	robot, err := s.Store.GetRobot(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Robot '%s' not found", id))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load robot")
		return
	}
	if live, ok := s.Fleet.Get(id); ok {
		robot.CurrentCommand = live.CurrentCommand
	}
	detail := robotDetail{Robot: robot}
	if sample, ok := s.latest(r.Context(), id); ok {
		detail.LatestTelemetry = &sample
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *server) updateRobot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req robotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	robot, err := s.Store.GetRobot(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Robot '%s' not found", id))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load robot")
		return
	}
	req.apply(&robot)
	saved, ok := s.saveRobot(w, r, robot)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, robotResponse{Message: "Robot updated successfully", Robot: saved})
}

// deactivateRobot is a soft delete: the robot stops producing telemetry but keeps its history.
func (s *server) deactivateRobot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	robot, err := s.Store.GetRobot(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Robot '%s' not found", id))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load robot")
		return
	}
	robot.IsActive = false
	if _, ok := s.saveRobot(w, r, robot); !ok {
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: fmt.Sprintf("Robot '%s' deactivated successfully", id)})
}

func (s *server) saveRobot(w http.ResponseWriter, r *http.Request, robot model.Robot) (model.Robot, bool) {
	if live, ok := s.Fleet.Get(robot.ID); ok {
		robot.CurrentCommand = live.CurrentCommand
	}
	saved, err := s.Store.UpdateRobot(r.Context(), robot)
	if err != nil {
		log.Printf("update robot %s failed: %v", robot.ID, err)
		writeError(w, http.StatusInternalServerError, "failed to update robot")
		return model.Robot{}, false
	}
	s.Fleet.Upsert(saved)
	log.Printf("robot updated: %s active=%v", saved.ID, saved.IsActive)
	return saved, true
}

func (s *server) robotsSummary(w http.ResponseWriter, r *http.Request) {
	robots, err := s.Store.ListRobots(r.Context(), true)
	if err != nil {
		log.Printf("list robots failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list robots")
		return
	}
	out := make([]model.RobotSummary, 0, len(robots))
	for _, robot := range robots {
		sum := model.RobotSummary{ID: robot.ID, Name: robot.Name, Location: robot.Location, Status: "unknown"}
		if sample, ok := s.latest(r.Context(), robot.ID); ok {
			battery, temp, ts := sample.Battery, sample.Temperature, sample.Timestamp
			sum.Status = string(sample.Status)
			sum.Battery = &battery
			sum.Temperature = &temp
			sum.LastUpdate = &ts
		}
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, robotsResponse[model.RobotSummary]{Count: len(out), Robots: out})
}

func (req robotRequest) apply(r *model.Robot) {
	if req.Name != nil {
		r.Name = *req.Name
	}
	if req.Description != nil {
		r.Description = *req.Description
	}
	if req.Location != nil {
		r.Location = *req.Location
	}
	if req.IsActive != nil {
		r.IsActive = *req.IsActive
	}
}
