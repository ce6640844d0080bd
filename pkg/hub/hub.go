package hub

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"robot-telemetry/pkg/alert"
	"robot-telemetry/pkg/history"
	"robot-telemetry/pkg/metrics"
	"robot-telemetry/pkg/model"
	"robot-telemetry/pkg/store"
)

// Channels a session can subscribe to.
const (
	ChannelTelemetry = "telemetry"
	ChannelAlerts    = "alerts"
)

// DefaultQueueSize bounds the messages waiting to be written to one session.
const DefaultQueueSize = 64

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrUnknownChannel = errors.New("unknown channel")
	ErrClosed         = errors.New("hub closed")
)

// Sender is the transport of one session. Send is only ever called from the session's writer goroutine.
type Sender interface {
	Send(msg model.WSMessage) error
	Close() error
}

// Archive answers history requests beyond the in-memory capacity.
type Archive interface {
	RecentSamples(ctx context.Context, q store.SampleQuery) ([]model.TelemetrySample, error)
}

// Options configures a Hub. Zero values select defaults.
type Options struct {
	HistoryCapacity int
	QueueSize       int
	Evaluator       *alert.Evaluator
	Archive         Archive
	Observer        metrics.Observer
}

// Session is one connected dashboard.
type Session struct {
	ID          string
	ConnectedAt time.Time

	sender   Sender
	queue    chan model.WSMessage
	done     chan struct{}
	once     sync.Once
	channels map[string]struct{} // guarded by Hub.mu
}

// Hub fans samples and alerts out to subscribed sessions and keeps the recent history.
// Every session has its own queue and writer goroutine, so a slow or broken transport only
// affects its own session.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	subs     map[string]map[string]*Session // channel -> session id -> session

	buffer    *history.Buffer
	alerts    *alert.Evaluator
	archive   Archive
	obs       metrics.Observer
	queueSize int
	wg        sync.WaitGroup
	closed    bool // guarded by mu
}

func New(opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Evaluator == nil {
		opts.Evaluator = alert.NewEvaluator()
	}
	if opts.Observer == nil {
		opts.Observer = metrics.Nop{}
	}
	return &Hub{
		sessions: make(map[string]*Session),
		subs: map[string]map[string]*Session{
			ChannelTelemetry: {},
			ChannelAlerts:    {},
		},
		buffer:    history.NewBuffer(opts.HistoryCapacity),
		alerts:    opts.Evaluator,
		archive:   opts.Archive,
		obs:       opts.Observer,
		queueSize: opts.QueueSize,
	}
}

// Connect registers a session for sender, optionally subscribed to channels.
func (h *Hub) Connect(sender Sender, channels ...string) (*Session, error) {
	return h.ConnectWith(sender, nil, channels...)
}

// ConnectWith is Connect with a first message. welcome is queued before the session can receive
// broadcasts, so it is always the first frame written.
func (h *Hub) ConnectWith(sender Sender, welcome func(sessionID string) model.WSMessage, channels ...string) (*Session, error) {
	for _, ch := range channels {
		if !h.knownChannel(ch) {
			return nil, ErrUnknownChannel
		}
	}
	s := &Session{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now().UTC(),
		sender:      sender,
		queue:       make(chan model.WSMessage, h.queueSize),
		done:        make(chan struct{}),
		channels:    make(map[string]struct{}),
	}
	if welcome != nil {
		s.queue <- welcome(s.ID)
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.sessions[s.ID] = s
	for _, ch := range channels {
		s.channels[ch] = struct{}{}
		h.subs[ch][s.ID] = s
	}
	n := len(h.sessions)
	h.wg.Add(1)
	h.mu.Unlock()

	h.obs.SetSessions(n)
	go h.writeLoop(s)
	log.Printf("session connected: %s (sessions=%d)", s.ID, n)
	return s, nil
}

// Subscribe adds channel to the session. Subscribing twice is a no-op.
func (h *Hub) Subscribe(sessionID, channel string) error {
	if !h.knownChannel(channel) {
		return ErrUnknownChannel
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	s.channels[channel] = struct{}{}
	h.subs[channel][sessionID] = s
	return nil
}

// Unsubscribe removes channel from the session. Unsubscribing twice is a no-op.
func (h *Hub) Unsubscribe(sessionID, channel string) error {
	if !h.knownChannel(channel) {
		return ErrUnknownChannel
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	delete(s.channels, channel)
	delete(h.subs[channel], sessionID)
	return nil
}

// Channels lists the session's subscriptions.
func (h *Hub) Channels(sessionID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(s.channels))
	for _, ch := range []string{ChannelTelemetry, ChannelAlerts} {
		if _, ok := s.channels[ch]; ok {
			out = append(out, ch)
		}
	}
	return out
}

// Disconnect removes the session and its subscriptions and closes its transport. Safe to call repeatedly.
func (h *Hub) Disconnect(sessionID string) {
	h.mu.Lock()
	s, ok := h.sessions[sessionID]
	if ok {
		delete(h.sessions, sessionID)
		for ch := range s.channels {
			delete(h.subs[ch], sessionID)
		}
	}
	n := len(h.sessions)
	h.mu.Unlock()
	if !ok {
		return
	}
	s.once.Do(func() {
		close(s.done)
		_ = s.sender.Close()
	})
	h.obs.SetSessions(n)
	log.Printf("session disconnected: %s (sessions=%d)", sessionID, n)
}

// SessionCount is the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Publish stores s in the history, delivers any new alerts to alert subscribers and then the
// sample to telemetry subscribers. Delivery is best effort; the raised alerts are returned.
func (h *Hub) Publish(s model.TelemetrySample) []model.AlertEvent {
	start := time.Now()
	if err := h.buffer.Append(s.RobotID, s); err != nil {
		log.Printf("history append robot=%s ts=%s: %v", s.RobotID, s.Timestamp.Format(time.RFC3339Nano), err)
	}
	alerts := h.alerts.Evaluate(s)
	for _, a := range alerts {
		h.obs.AlertRaised(string(a.Severity))
		h.Broadcast(ChannelAlerts, model.WSMessage{Type: model.MsgAlert, Payload: a})
	}
	h.Broadcast(ChannelTelemetry, model.WSMessage{Type: model.MsgTelemetryUpdate, Payload: s})
	h.obs.SamplePublished(time.Since(start))
	return alerts
}

// Broadcast queues msg for every session subscribed to channel and returns how many accepted it.
func (h *Hub) Broadcast(channel string, msg model.WSMessage) int {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.subs[channel]))
	for _, s := range h.subs[channel] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	n := 0
	for _, s := range targets {
		if h.enqueue(s, msg) {
			n++
		}
	}
	return n
}

// SendTo queues msg for one session only.
func (h *Hub) SendTo(sessionID string, msg model.WSMessage) error {
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return ErrUnknownSession
	}
	h.enqueue(s, msg)
	return nil
}

// Latest returns the newest buffered sample of robotID.
func (h *Hub) Latest(robotID string) (model.TelemetrySample, bool) {
	return h.buffer.Latest(robotID)
}

// History returns up to limit recent samples of robotID, oldest first. Requests larger than the
// in-memory capacity are answered from the archive when one is configured.
func (h *Hub) History(ctx context.Context, robotID string, limit int) ([]model.TelemetrySample, error) {
	if h.archive != nil && limit > h.buffer.Capacity() {
		rows, err := h.archive.RecentSamples(ctx, store.SampleQuery{RobotID: robotID, Limit: limit})
		if err == nil {
			for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
				rows[i], rows[j] = rows[j], rows[i]
			}
			return rows, nil
		}
		h.obs.StoreError("recent_samples")
		log.Printf("archive history robot=%s limit=%d failed, serving memory: %v", robotID, limit, err)
	}
	return h.buffer.Recent(robotID, limit), nil
}

// Close disconnects every session and waits for their writers to stop. Later connects fail with ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	ids := make([]string, 0, len(h.sessions))
	for id := range h.sessions {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		h.Disconnect(id)
	}
	h.wg.Wait()
}

func (h *Hub) enqueue(s *Session, msg model.WSMessage) bool {
	select {
	case <-s.done:
		h.obs.MessageDropped(msg.Type)
		return false
	default:
	}
	select {
	case s.queue <- msg:
		return true
	default:
		h.obs.MessageDropped(msg.Type)
		log.Printf("session %s queue full; dropped %s", s.ID, msg.Type)
		return false
	}
}

func (h *Hub) writeLoop(s *Session) {
	defer h.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.queue:
			if err := s.sender.Send(msg); err != nil {
				h.obs.SendFailed()
				log.Printf("session %s send %s failed: %v", s.ID, msg.Type, err)
				h.Disconnect(s.ID)
				return
			}
			h.obs.MessageDelivered(msg.Type)
		}
	}
}

func (h *Hub) knownChannel(ch string) bool {
	return ch == ChannelTelemetry || ch == ChannelAlerts
}
