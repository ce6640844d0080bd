package api

import (
	"fmt"
	"net/http"
	"time"

	"robot-telemetry/pkg/foxglove"
)

func (s *server) registerFoxglove(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/foxglove/info", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.Bridge.Info())
	})
	mux.HandleFunc("GET /api/foxglove/channels", func(w http.ResponseWriter, _ *http.Request) {
		chs := foxglove.Channels()
		writeJSON(w, http.StatusOK, channelsResponse{Count: len(chs), Channels: chs})
	})
	mux.HandleFunc("GET /api/foxglove/telemetry", func(w http.ResponseWriter, r *http.Request) {
		robotID := robotParam(r)
		sample, ok := s.latest(r.Context(), robotID)
		if !ok {
			sample, ok = s.Fleet.Snapshot(robotID)
		}
		if !ok {
			writeError(w, http.StatusNotFound, fmt.Sprintf("No telemetry data for robot '%s'", robotID))
			return
		}
		writeJSON(w, http.StatusOK, foxgloveMessages{Messages: s.Bridge.Convert(sample)})
	})
	mux.HandleFunc("GET /api/foxglove/stream", func(w http.ResponseWriter, r *http.Request) {
		limit := intParam(r.URL.Query().Get("limit"), defaultHistoryLimit, maxHistoryLimit)
		rows, err := s.Hub.History(r.Context(), robotParam(r), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		msgs := make([]foxglove.Message, 0, len(rows)*3)
		for _, row := range rows {
			msgs = append(msgs, s.Bridge.Convert(row)...)
		}
		writeJSON(w, http.StatusOK, foxgloveMessages{Count: len(msgs), Messages: msgs})
	})
	mux.HandleFunc("GET /api/foxglove/export", func(w http.ResponseWriter, r *http.Request) {
		limit := intParam(r.URL.Query().Get("limit"), defaultExportLimit, maxExportLimit)
		rows, err := s.Hub.History(r.Context(), robotParam(r), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, s.Bridge.Export(rows, time.Now()))
	})
	mux.HandleFunc("GET /api/foxglove/schema/{topic...}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("topic")
		ch, ok := foxglove.LookupSchema(name)
		if !ok {
			writeError(w, http.StatusNotFound, "Topic not found: "+name)
			return
		}
		writeJSON(w, http.StatusOK, schemaResponse{Topic: ch.Topic, SchemaName: ch.SchemaName, Schema: ch.Schema})
	})
}
