package alert

import (
	"fmt"
	"sync"

	"robot-telemetry/pkg/model"
)

// Thresholds used by the rules.
const (
	OverheatAbove        = 55.0
	HighTemperatureAbove = 50.0
	CriticalBatteryBelow = 10
	LowBatteryBelow      = 20
)

// condition groups; at most one alert per group per sample.
const (
	groupTemperature = "temperature"
	groupBattery     = "battery"
	groupStatus      = "status"
)

type fired struct {
	category string
	severity model.Severity
}

// Evaluator turns samples into alerts. An alert fires when its condition group enters a new
// (category, severity) level and stays quiet while that level persists; the remembered level
// is cleared when the condition clears.
type Evaluator struct {
	mu   sync.Mutex
	last map[string]map[string]fired // robotID -> group -> level
}

func NewEvaluator() *Evaluator {
	return &Evaluator{last: make(map[string]map[string]fired)}
}

// Evaluate returns the alerts newly raised by s, in rule priority order.
func (e *Evaluator) Evaluate(s model.TelemetrySample) []model.AlertEvent {
	candidates := map[string]*model.AlertEvent{
		groupTemperature: temperatureRule(s),
		groupBattery:     batteryRule(s),
		groupStatus:      statusRule(s),
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	state := e.last[s.RobotID]
	if state == nil {
		state = make(map[string]fired)
		e.last[s.RobotID] = state
	}

	var out []model.AlertEvent
	for _, group := range []string{groupTemperature, groupBattery, groupStatus} {
		a := candidates[group]
		if a == nil {
			delete(state, group)
			continue
		}
		level := fired{category: a.Category, severity: a.Severity}
		if prev, ok := state[group]; ok && prev == level {
			continue
		}
		state[group] = level
		out = append(out, *a)
	}
	return out
}

// Reset forgets what was fired for robotID.
func (e *Evaluator) Reset(robotID string) {
	e.mu.Lock()
	delete(e.last, robotID)
	e.mu.Unlock()
}

func temperatureRule(s model.TelemetrySample) *model.AlertEvent {
	switch {
	case s.Temperature > OverheatAbove:
		return newAlert(s, model.CategoryOverheat, model.SeverityCritical, OverheatAbove, s.Temperature,
			fmt.Sprintf("Critical temperature: %.1f°C", s.Temperature))
	case s.Temperature > HighTemperatureAbove:
		return newAlert(s, model.CategoryHighTemperature, model.SeverityWarning, HighTemperatureAbove, s.Temperature,
			fmt.Sprintf("High temperature: %.1f°C", s.Temperature))
	}
	return nil
}

func batteryRule(s model.TelemetrySample) *model.AlertEvent {
	switch {
	case s.Battery < CriticalBatteryBelow:
		return newAlert(s, model.CategoryLowBattery, model.SeverityCritical, CriticalBatteryBelow, s.Battery,
			fmt.Sprintf("Critical battery: %d%%", s.Battery))
	case s.Battery < LowBatteryBelow:
		return newAlert(s, model.CategoryLowBattery, model.SeverityWarning, LowBatteryBelow, s.Battery,
			fmt.Sprintf("Low battery: %d%%", s.Battery))
	}
	return nil
}

func statusRule(s model.TelemetrySample) *model.AlertEvent {
	if s.Status != model.StatusError {
		return nil
	}
	return newAlert(s, model.CategoryFault, model.SeverityCritical, 0, string(s.Status), "Robot in ERROR state")
}

func newAlert(s model.TelemetrySample, category string, sev model.Severity, threshold float64, value any, msg string) *model.AlertEvent {
	return &model.AlertEvent{
		Category:  category,
		Severity:  sev,
		Message:   msg,
		RobotID:   s.RobotID,
		Threshold: threshold,
		Value:     value,
		Timestamp: s.Timestamp,
	}
}
