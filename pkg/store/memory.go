package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"robot-telemetry/pkg/model"
)

// memorySampleLimit bounds the telemetry kept per robot by MemoryStore.
const memorySampleLimit = 10000

// MemoryStore is a simple in-memory implementation, intended for dev/demo.
type MemoryStore struct {
	mu       sync.RWMutex
	robots   map[string]model.Robot
	samples  map[string][]model.TelemetrySample
	commands []model.CommandRecord
	nextID   uint
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		robots:  make(map[string]model.Robot),
		samples: make(map[string][]model.TelemetrySample),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) EnsureRobot(_ context.Context, r model.Robot) (model.Robot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.robots[r.ID]; ok {
		return cur, nil
	}
	return m.putRobot(r), nil
}

func (m *MemoryStore) CreateRobot(_ context.Context, r model.Robot) (model.Robot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.robots[r.ID]; ok {
		return model.Robot{}, ErrExists
	}
	return m.putRobot(r), nil
}

func (m *MemoryStore) UpdateRobot(_ context.Context, r model.Robot) (model.Robot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.robots[r.ID]
	if !ok {
		return model.Robot{}, ErrNotFound
	}
	r.CreatedAt = cur.CreatedAt
	r.UpdatedAt = m.now()
	m.robots[r.ID] = r
	return r, nil
}

func (m *MemoryStore) GetRobot(_ context.Context, id string) (model.Robot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.robots[id]
	if !ok {
		return model.Robot{}, ErrNotFound
	}
	return r, nil
}

func (m *MemoryStore) ListRobots(_ context.Context, activeOnly bool) ([]model.Robot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Robot, 0, len(m.robots))
	for _, r := range m.robots {
		if activeOnly && !r.IsActive {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) InsertSample(_ context.Context, s model.TelemetrySample) (model.TelemetrySample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.RobotID = robotIDOrDefault(s.RobotID)
	m.nextID++
	s.ID = m.nextID
	hist := append(m.samples[s.RobotID], s)
	if len(hist) > memorySampleLimit {
		hist = append([]model.TelemetrySample(nil), hist[len(hist)-memorySampleLimit:]...)
	}
	m.samples[s.RobotID] = hist
	return s, nil
}

func (m *MemoryStore) LatestSample(_ context.Context, robotID string) (model.TelemetrySample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hist := m.samples[robotIDOrDefault(robotID)]
	if len(hist) == 0 {
		return model.TelemetrySample{}, ErrNotFound
	}
	return hist[len(hist)-1], nil
}

func (m *MemoryStore) RecentSamples(_ context.Context, q SampleQuery) ([]model.TelemetrySample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hist := m.samples[robotIDOrDefault(q.RobotID)]
	out := make([]model.TelemetrySample, 0)
	for i := len(hist) - 1; i >= 0; i-- {
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
		if q.matches(hist[i]) {
			out = append(out, hist[i])
		}
	}
	return out, nil
}

func (m *MemoryStore) InsertCommand(_ context.Context, c model.CommandRecord) (model.CommandRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c.RobotID = robotIDOrDefault(c.RobotID)
	if c.ExecutedAt.IsZero() {
		c.ExecutedAt = m.now()
	}
	c.ID = uint(len(m.commands) + 1)
	m.commands = append(m.commands, c)
	return c, nil
}

// ListCommands returns the newest commands first. An empty robotID lists every robot.
func (m *MemoryStore) ListCommands(_ context.Context, robotID string, limit int) ([]model.CommandRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.CommandRecord, 0)
	for i := len(m.commands) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if robotID != "" && m.commands[i].RobotID != robotID {
			continue
		}
		out = append(out, m.commands[i])
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) putRobot(r model.Robot) model.Robot {
	now := m.now()
	r.CreatedAt = now
	r.UpdatedAt = now
	m.robots[r.ID] = r
	return r
}
