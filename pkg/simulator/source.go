package simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"robot-telemetry/pkg/model"
)

// Walk limits.
const (
	TempMin       = 30.0
	TempMax       = 65.0
	TempStep      = 0.5
	RPMMin        = 800
	RPMMax        = 1800
	FaultBattery  = 15
	BatteryFull   = 100.0
	BatteryEmpty  = 0.0
	idleRecharge  = 0.5
	workDrainMin  = 0.3
	workDrainSpan = 0.7
	faultDrain    = 0.2
)

type robotState struct {
	mu          sync.Mutex
	robot       model.Robot
	rng         *rand.Rand
	seq         uint64 // bumped per applied command
	appliedSeq  uint64
	status      model.Status
	temperature float64
	battery     float64
	last        model.TelemetrySample
	hasLast     bool
}

func newRobotState(r model.Robot, rng *rand.Rand) *robotState {
	status := model.StatusIdle
	if r.CurrentCommand == model.CommandStart {
		status = model.StatusWorking
	}
	return &robotState{
		robot:       r,
		rng:         rng,
		status:      status,
		temperature: round1(35 + rng.Float64()*5),
		battery:     float64(70 + rng.Intn(31)),
	}
}

// step advances the random walk by one tick. Caller holds rs.mu.
func (rs *robotState) step(now time.Time, faultProb float64) model.TelemetrySample {
	if rs.seq != rs.appliedSeq {
		rs.appliedSeq = rs.seq
		switch rs.robot.CurrentCommand {
		case model.CommandStart:
			rs.status = model.StatusWorking
		case model.CommandReset:
			rs.status = model.StatusIdle
			rs.battery = BatteryFull
		default:
			rs.status = model.StatusIdle
		}
	}

	switch rs.status {
	case model.StatusWorking:
		rs.battery -= workDrainMin + rs.rng.Float64()*workDrainSpan
	case model.StatusIdle:
		rs.battery += rs.rng.Float64() * idleRecharge
	case model.StatusError:
		rs.battery -= rs.rng.Float64() * faultDrain
	}
	rs.battery = clamp(rs.battery, BatteryEmpty, BatteryFull)

	if rs.status == model.StatusWorking && rs.battery < FaultBattery && rs.rng.Float64() < faultProb {
		rs.status = model.StatusError
	}

	rs.temperature = round1(clamp(rs.temperature+rs.drift(), TempMin, TempMax))

	rpm := 0
	if rs.status == model.StatusWorking {
		rpm = RPMMin + rs.rng.Intn(RPMMax-RPMMin+1)
	}

	if rs.hasLast && now.Before(rs.last.Timestamp) {
		now = rs.last.Timestamp
	}
	s := model.TelemetrySample{
		RobotID:     rs.robot.ID,
		Temperature: rs.temperature,
		Battery:     int(math.Floor(rs.battery)),
		MotorRPM:    rpm,
		Status:      rs.status,
		Timestamp:   now,
	}
	rs.last, rs.hasLast = s, true
	return s
}

// drift is a step within ±TempStep, skewed warmer while working and cooler while idle.
func (rs *robotState) drift() float64 {
	lo, hi := -TempStep, TempStep
	switch rs.status {
	case model.StatusWorking:
		lo = -0.3
	case model.StatusIdle:
		hi = 0.3
	case model.StatusError:
		lo = -0.2
	}
	return lo + rs.rng.Float64()*(hi-lo)
}

func (rs *robotState) snapshot(now time.Time) model.TelemetrySample {
	rpm := 0
	if rs.hasLast && rs.status == model.StatusWorking {
		rpm = rs.last.MotorRPM
	}
	return model.TelemetrySample{
		RobotID:     rs.robot.ID,
		Temperature: rs.temperature,
		Battery:     int(math.Floor(rs.battery)),
		MotorRPM:    rpm,
		Status:      rs.status,
		Timestamp:   now,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
