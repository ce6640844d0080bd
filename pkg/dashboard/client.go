package dashboard

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"robot-telemetry/pkg/hub"
	"robot-telemetry/pkg/model"
)

// PushHandler receives frames from a live push connection. OnClose is called once when it ends.
type PushHandler interface {
	OnSample(model.TelemetrySample)
	OnAlert(model.AlertEvent)
	OnCommandResult(model.CommandResult)
	OnClose(error)
}

// PushConn is an established push connection.
type PushConn interface {
	Subscribe(channel string) error
	Close() error
}

// Push opens push connections.
type Push interface {
	Dial(ctx context.Context, h PushHandler) (PushConn, error)
}

// Pull is the request/response transport used while polling and for commands.
type Pull interface {
	Latest(ctx context.Context, robotID string) (model.TelemetrySample, error)
	// History returns up to limit samples, newest first.
	History(ctx context.Context, robotID string, limit int) ([]model.TelemetrySample, error)
	Command(ctx context.Context, robotID, command string) (model.CommandResult, error)
}

// Event is an input to the client's state machine.
type Event interface{ event() }

type (
	evStart         struct{}
	evPushConnected struct {
		gen  int
		conn PushConn
	}
	evPushDown struct {
		gen int
		err error
	}
	evReconnectTick struct{ gen int }
	evPollTick      struct{ gen int }
	evHistoryTick   struct{ gen int }
	evLatest        struct {
		gen    int
		sample model.TelemetrySample
		err    error
	}
	evHistory struct {
		gen     int
		seed    bool
		samples []model.TelemetrySample
		err     error
	}
	evSample struct {
		gen    int
		sample model.TelemetrySample
	}
	evAlert struct {
		gen   int
		alert model.AlertEvent
	}
	evSubmit        struct{ command string }
	evCommandResult struct {
		result model.CommandResult
		err    error
	}
	evFeedbackExpire struct{ seq int }
)

func (evStart) event()          {}
func (evPushConnected) event()  {}
func (evPushDown) event()       {}
func (evReconnectTick) event()  {}
func (evPollTick) event()       {}
func (evHistoryTick) event()    {}
func (evLatest) event()         {}
func (evHistory) event()        {}
func (evSample) event()         {}
func (evAlert) event()          {}
func (evSubmit) event()         {}
func (evCommandResult) event()  {}
func (evFeedbackExpire) event() {}

// Client keeps a dashboard view current for one robot. It prefers the push channel, falls
// back to polling when push is unavailable and retries push a bounded number of times.
// All state is owned by the goroutine running Run.
type Client struct {
	opts   Options
	push   Push
	pull   Pull
	render Renderer

	events   chan Event
	done     chan struct{}
	doneOnce sync.Once
	ctx      context.Context
	async    func(func())
	state    atomic.Int32

	// loop-owned
	pushGen        int
	pollGen        int
	conn           PushConn
	reconnects     int
	pollTimer      Timer
	historyTimer   Timer
	reconnectTimer Timer
	view           *View
	seeded         bool
	early          []model.TelemetrySample // samples received before the seed was merged
	alerts         []model.AlertEvent
	feedback       *Feedback
	feedbackSeq    int
}

func New(push Push, pull Pull, render Renderer, opts Options) *Client {
	opts = opts.withDefaults()
	c := &Client{
		opts:   opts,
		push:   push,
		pull:   pull,
		render: render,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
		ctx:    context.Background(),
		async:  func(f func()) { go f() },
		view:   NewView(opts.RobotID, opts.HistorySize),
	}
	c.state.Store(int32(Connecting))
	return c
}

// State reports the current connection state. Safe for concurrent use.
func (c *Client) State() State { return State(c.state.Load()) }

// Submit queues a command for the robot. The outcome is shown as feedback.
func (c *Client) Submit(command string) { c.post(evSubmit{command: command}) }

// Run drives the client until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	c.ctx = ctx
	defer c.shutdown()
	c.handle(evStart{})
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Client) post(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Client) shutdown() {
	c.doneOnce.Do(func() { close(c.done) })
	c.stopPolling()
	stopTimer(&c.reconnectTimer)
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) setState(s State) {
	if c.State() != s {
		log.Printf("dashboard state %s -> %s", c.State(), s)
	}
	c.state.Store(int32(s))
}

// handle applies one event. It never blocks: I/O runs through c.async and reports back as events.
func (c *Client) handle(ev Event) {
	switch e := ev.(type) {
	case evStart:
		c.setState(Connecting)
		c.fetchHistory(c.pollGen, true)
		c.dial()
	case evPushConnected:
		if e.gen != c.pushGen {
			_ = e.conn.Close()
			return
		}
		c.conn = e.conn
		c.reconnects = 0
		stopTimer(&c.reconnectTimer)
		c.stopPolling()
		c.setState(PushConnected)
		conn := e.conn
		c.async(func() {
			for _, ch := range []string{hub.ChannelTelemetry, hub.ChannelAlerts} {
				if err := conn.Subscribe(ch); err != nil {
					log.Printf("dashboard subscribe %s: %v", ch, err)
				}
			}
		})
	case evPushDown:
		if e.gen != c.pushGen {
			return
		}
		if e.err != nil {
			log.Printf("dashboard push unavailable: %v", e.err)
		}
		if c.conn != nil {
			_ = c.conn.Close()
			c.conn = nil
		}
		if c.State() != Polling {
			c.startPolling()
		}
		c.scheduleReconnect()
	case evReconnectTick:
		if e.gen != c.pushGen || c.State() == PushConnected {
			return
		}
		c.dial()
	case evPollTick:
		if e.gen != c.pollGen || c.State() != Polling {
			return
		}
		c.fetchLatest(e.gen)
		c.pollTimer = c.opts.Clock.AfterFunc(c.opts.PollInterval, func() { c.post(evPollTick{gen: e.gen}) })
		return
	case evHistoryTick:
		if e.gen != c.pollGen || c.State() != Polling {
			return
		}
		c.fetchHistory(e.gen, false)
		c.historyTimer = c.opts.Clock.AfterFunc(c.opts.HistoryInterval, func() { c.post(evHistoryTick{gen: e.gen}) })
		return
	case evLatest:
		if e.gen != c.pollGen || c.State() != Polling {
			return
		}
		if e.err != nil {
			log.Printf("dashboard poll latest: %v", e.err)
			return
		}
		if !c.add(e.sample) {
			return
		}
	case evHistory:
		if !e.seed && (e.gen != c.pollGen || c.State() != Polling) {
			return
		}
		if e.err != nil {
			log.Printf("dashboard poll history: %v", e.err)
			if !e.seed {
				return
			}
		}
		oldest := make([]model.TelemetrySample, 0, len(e.samples))
		for i := len(e.samples) - 1; i >= 0; i-- {
			oldest = append(oldest, e.samples[i])
		}
		if e.seed {
			c.mergeSeed(oldest)
			break
		}
		added := 0
		for _, smp := range oldest {
			if c.add(smp) {
				added++
			}
		}
		if added == 0 {
			return
		}
	case evSample:
		if e.gen != c.pushGen || c.State() != PushConnected {
			return
		}
		if !c.add(e.sample) {
			return
		}
	case evAlert:
		if e.gen != c.pushGen || e.alert.RobotID != c.opts.RobotID {
			return
		}
		c.alerts = append([]model.AlertEvent{e.alert}, c.alerts...)
		if len(c.alerts) > maxAlerts {
			c.alerts = c.alerts[:maxAlerts]
		}
	case evSubmit:
		robotID, cmd := c.opts.RobotID, e.command
		c.async(func() {
			res, err := c.pull.Command(c.ctx, robotID, cmd)
			c.post(evCommandResult{result: res, err: err})
		})
		return
	case evCommandResult:
		fb := &Feedback{Success: e.result.Success, Message: e.result.Message}
		if e.err != nil {
			fb = &Feedback{Message: "Command failed: " + e.err.Error()}
		}
		c.feedback = fb
		c.feedbackSeq++
		seq := c.feedbackSeq
		c.opts.Clock.AfterFunc(c.opts.FeedbackTTL, func() { c.post(evFeedbackExpire{seq: seq}) })
	case evFeedbackExpire:
		if e.seq != c.feedbackSeq {
			return
		}
		c.feedback = nil
	default:
		log.Printf("dashboard: unhandled event %T", ev)
		return
	}
	c.render.Render(c.snapshot())
}

// add puts s in the view, or holds it back until the history seed has been merged.
func (c *Client) add(s model.TelemetrySample) bool {
	if !c.seeded {
		c.early = append(c.early, s)
		if len(c.early) > c.opts.HistorySize {
			c.early = c.early[1:]
		}
		return false
	}
	return c.view.Add(s)
}

// mergeSeed applies the initial history, then whatever arrived while it was in flight.
func (c *Client) mergeSeed(oldest []model.TelemetrySample) {
	if c.seeded {
		c.view.Merge(oldest)
		return
	}
	c.seeded = true
	c.view.Merge(oldest)
	c.view.Merge(c.early)
	c.early = nil
}

func (c *Client) dial() {
	c.pushGen++
	gen := c.pushGen
	c.async(func() {
		conn, err := c.push.Dial(c.ctx, &pushSink{c: c, gen: gen})
		if err != nil {
			c.post(evPushDown{gen: gen, err: err})
			return
		}
		c.post(evPushConnected{gen: gen, conn: conn})
	})
}

func (c *Client) scheduleReconnect() {
	stopTimer(&c.reconnectTimer)
	if c.reconnects >= c.opts.MaxReconnects {
		log.Printf("dashboard: push reconnect budget spent after %d attempts, staying in polling", c.reconnects)
		return
	}
	c.reconnects++
	gen := c.pushGen
	c.reconnectTimer = c.opts.Clock.AfterFunc(c.opts.ReconnectDelay, func() { c.post(evReconnectTick{gen: gen}) })
}

func (c *Client) startPolling() {
	c.stopPolling()
	c.setState(Polling)
	gen := c.pollGen
	c.fetchLatest(gen)
	c.pollTimer = c.opts.Clock.AfterFunc(c.opts.PollInterval, func() { c.post(evPollTick{gen: gen}) })
	c.historyTimer = c.opts.Clock.AfterFunc(c.opts.HistoryInterval, func() { c.post(evHistoryTick{gen: gen}) })
}

// stopPolling cancels poll timers and invalidates any poll still in flight.
func (c *Client) stopPolling() {
	c.pollGen++
	stopTimer(&c.pollTimer)
	stopTimer(&c.historyTimer)
}

func (c *Client) fetchLatest(gen int) {
	robotID := c.opts.RobotID
	c.async(func() {
		s, err := c.pull.Latest(c.ctx, robotID)
		c.post(evLatest{gen: gen, sample: s, err: err})
	})
}

func (c *Client) fetchHistory(gen int, seed bool) {
	robotID, limit := c.opts.RobotID, c.opts.HistorySize
	c.async(func() {
		samples, err := c.pull.History(c.ctx, robotID, limit)
		c.post(evHistory{gen: gen, seed: seed, samples: samples, err: err})
	})
}

func (c *Client) snapshot() Snapshot {
	samples := c.view.Samples()
	snap := Snapshot{
		RobotID:     c.opts.RobotID,
		State:       c.State(),
		Reconnects:  c.reconnects,
		Labels:      make([]string, len(samples)),
		Temperature: make([]float64, len(samples)),
		Battery:     make([]int, len(samples)),
		MotorRPM:    make([]int, len(samples)),
		Alerts:      append([]model.AlertEvent(nil), c.alerts...),
	}
	for i, s := range samples {
		snap.Labels[i] = s.Timestamp.Local().Format("15:04:05")
		snap.Temperature[i] = s.Temperature
		snap.Battery[i] = s.Battery
		snap.MotorRPM[i] = s.MotorRPM
	}
	for i := len(samples) - 1; i >= 0 && len(snap.Rows) < c.opts.TableRows; i-- {
		snap.Rows = append(snap.Rows, samples[i])
	}
	if len(samples) > 0 {
		latest := samples[len(samples)-1]
		snap.Latest = &latest
	}
	if c.feedback != nil {
		fb := *c.feedback
		snap.Feedback = &fb
	}
	return snap
}

func stopTimer(t *Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// pushSink tags frames from one connection attempt so that frames from a replaced connection are ignored.
type pushSink struct {
	c    *Client
	gen  int
	once sync.Once
}

func (p *pushSink) OnSample(s model.TelemetrySample) { p.c.post(evSample{gen: p.gen, sample: s}) }
func (p *pushSink) OnAlert(a model.AlertEvent)       { p.c.post(evAlert{gen: p.gen, alert: a}) }

func (p *pushSink) OnCommandResult(r model.CommandResult) {
	p.c.post(evCommandResult{result: r})
}

func (p *pushSink) OnClose(err error) {
	p.once.Do(func() { p.c.post(evPushDown{gen: p.gen, err: err}) })
}
