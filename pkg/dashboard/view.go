package dashboard

import (
	"robot-telemetry/pkg/history"
	"robot-telemetry/pkg/model"
)

// View is the client's bounded chart and table history for one robot. It only ever appends
// and evicts: samples not newer than the last one shown are ignored, so replays from polling
// never duplicate or reorder entries.
type View struct {
	robotID string
	ring    *history.Ring
}

func NewView(robotID string, capacity int) *View {
	return &View{robotID: robotID, ring: history.NewRing(capacity)}
}

// Add appends s and reports whether it was new.
func (v *View) Add(s model.TelemetrySample) bool {
	if s.Timestamp.IsZero() || (s.RobotID != "" && s.RobotID != v.robotID) {
		return false
	}
	if last, ok := v.ring.Last(); ok && !s.Timestamp.After(last.Timestamp) {
		return false
	}
	return v.ring.Push(s) == nil
}

// Merge adds samples given oldest first and returns how many were new.
func (v *View) Merge(samples []model.TelemetrySample) int {
	n := 0
	for _, s := range samples {
		if v.Add(s) {
			n++
		}
	}
	return n
}

func (v *View) Len() int { return v.ring.Len() }

// Samples returns the view oldest first.
func (v *View) Samples() []model.TelemetrySample { return v.ring.Recent(0) }

func (v *View) Latest() (model.TelemetrySample, bool) { return v.ring.Last() }
