package simulator

import (
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"robot-telemetry/pkg/model"
)

var (
	ErrUnknownRobot  = errors.New("robot not found")
	ErrInactiveRobot = errors.New("robot is not active")
)

// Options tunes the simulation. Zero values select the defaults.
type Options struct {
	Seed             int64
	Now              func() time.Time
	FaultProbability float64 // chance per tick of a fault while working on a low battery
}

// DefaultFaultProbability applies when Options.FaultProbability is zero.
const DefaultFaultProbability = 0.05

// Fleet owns the simulated state of every registered robot. Each robot is guarded by its own
// mutex so commands and ticks on one robot are serialized while robots stay independent.
type Fleet struct {
	mu     sync.RWMutex
	robots map[string]*robotState
	seeds  *rand.Rand
	now    func() time.Time
	fault  float64
}

func NewFleet(opts Options) *Fleet {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.FaultProbability == 0 {
		opts.FaultProbability = DefaultFaultProbability
	}
	return &Fleet{
		robots: make(map[string]*robotState),
		seeds:  rand.New(rand.NewSource(opts.Seed)),
		now:    opts.Now,
		fault:  opts.FaultProbability,
	}
}

// Upsert registers r or refreshes its metadata. Simulated state of a known robot is kept.
func (f *Fleet) Upsert(r model.Robot) model.Robot {
	if r.ID == "" {
		r.ID = model.DefaultRobotID
	}
	f.mu.Lock()
	rs, ok := f.robots[r.ID]
	if !ok {
		rs = newRobotState(r, rand.New(rand.NewSource(f.seeds.Int63())))
		f.robots[r.ID] = rs
		f.mu.Unlock()
		return r
	}
	f.mu.Unlock()

	rs.mu.Lock()
	defer rs.mu.Unlock()
	cmd := rs.robot.CurrentCommand
	rs.robot = r
	rs.robot.CurrentCommand = cmd
	return rs.robot
}

// SetActive toggles whether the robot takes part in ticks and accepts commands.
func (f *Fleet) SetActive(id string, active bool) error {
	rs := f.lookup(id)
	if rs == nil {
		return ErrUnknownRobot
	}
	rs.mu.Lock()
	rs.robot.IsActive = active
	rs.mu.Unlock()
	return nil
}

func (f *Fleet) Get(id string) (model.Robot, bool) {
	rs := f.lookup(id)
	if rs == nil {
		return model.Robot{}, false
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.robot, true
}

// List returns all robots ordered by id.
func (f *Fleet) List() []model.Robot {
	states := f.states()
	out := make([]model.Robot, 0, len(states))
	for _, rs := range states {
		rs.mu.Lock()
		out = append(out, rs.robot)
		rs.mu.Unlock()
	}
	return out
}

// Apply records cmd as the robot's current command. The effect shows up on the next tick.
func (f *Fleet) Apply(id string, cmd model.Command) (model.Robot, error) {
	rs := f.lookup(id)
	if rs == nil {
		return model.Robot{}, ErrUnknownRobot
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if !rs.robot.IsActive {
		return rs.robot, ErrInactiveRobot
	}
	rs.robot.CurrentCommand = cmd
	rs.robot.UpdatedAt = f.now().UTC()
	rs.seq++
	return rs.robot, nil
}

// Running reports whether the robot has not been stopped.
func (f *Fleet) Running(id string) bool {
	r, ok := f.Get(id)
	return ok && r.CurrentCommand != model.CommandStop
}

// Tick produces the next sample of one robot.
func (f *Fleet) Tick(id string) (model.TelemetrySample, error) {
	rs := f.lookup(id)
	if rs == nil {
		return model.TelemetrySample{}, ErrUnknownRobot
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.step(f.now().UTC(), f.fault), nil
}

// TickAll produces one sample per active robot, ordered by robot id.
func (f *Fleet) TickAll() []model.TelemetrySample {
	var out []model.TelemetrySample
	for _, rs := range f.states() {
		rs.mu.Lock()
		if rs.robot.IsActive {
			out = append(out, rs.step(f.now().UTC(), f.fault))
		}
		rs.mu.Unlock()
	}
	return out
}

// Snapshot describes the robot's current state as a sample without advancing the walk.
func (f *Fleet) Snapshot(id string) (model.TelemetrySample, bool) {
	rs := f.lookup(id)
	if rs == nil {
		return model.TelemetrySample{}, false
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.snapshot(f.now().UTC()), true
}

func (f *Fleet) lookup(id string) *robotState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.robots[id]
}

func (f *Fleet) states() []*robotState {
	f.mu.RLock()
	ids := make([]string, 0, len(f.robots))
	for id := range f.robots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*robotState, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.robots[id])
	}
	f.mu.RUnlock()
	return out
}
