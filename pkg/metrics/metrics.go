package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer receives operational signals from the distribution path.
type Observer interface {
	SetSessions(n int)
	SamplePublished(d time.Duration)
	MessageDelivered(msgType string)
	MessageDropped(msgType string)
	SendFailed()
	AlertRaised(severity string)
	StoreError(op string)
	CommandSubmitted(command string, success bool)
}

// Nop discards everything.
type Nop struct{}

func (Nop) SetSessions(int)               {}
func (Nop) SamplePublished(time.Duration) {}
func (Nop) MessageDelivered(string)       {}
func (Nop) MessageDropped(string)         {}
func (Nop) SendFailed()                   {}
func (Nop) AlertRaised(string)            {}
func (Nop) StoreError(string)             {}
func (Nop) CommandSubmitted(string, bool) {}

// Prom exports the signals as Prometheus collectors.
type Prom struct {
	sessions   prometheus.Gauge
	published  prometheus.Counter
	publishLat prometheus.Histogram
	delivered  *prometheus.CounterVec
	dropped    *prometheus.CounterVec
	sendFail   prometheus.Counter
	alerts     *prometheus.CounterVec
	storeErrs  *prometheus.CounterVec
	commands   *prometheus.CounterVec
}

// NewProm creates the collectors and registers them with reg.
func NewProm(reg prometheus.Registerer) *Prom {
	p := &Prom{
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "telemetry_sessions_connected",
			Help: "Dashboard sessions currently connected to the push channel.",
		}),
		published: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_samples_published_total",
			Help: "Samples published to the distribution hub.",
		}),
		publishLat: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "telemetry_publish_seconds",
			Help:    "Time spent buffering, evaluating and enqueueing one sample.",
			Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12),
		}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_messages_delivered_total",
			Help: "Push messages written to session transports.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_messages_dropped_total",
			Help: "Push messages dropped because a session queue was full or closed.",
		}, []string{"type"}),
		sendFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_send_failures_total",
			Help: "Session transport writes that failed.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_alerts_total",
			Help: "Alerts raised by severity.",
		}, []string{"severity"}),
		storeErrs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_store_errors_total",
			Help: "Persistent store operations that failed.",
		}, []string{"op"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_commands_total",
			Help: "Robot commands submitted.",
		}, []string{"command", "success"}),
	}
	reg.MustRegister(p.sessions, p.published, p.publishLat, p.delivered, p.dropped,
		p.sendFail, p.alerts, p.storeErrs, p.commands)
	return p
}

func (p *Prom) SetSessions(n int) { p.sessions.Set(float64(n)) }

func (p *Prom) SamplePublished(d time.Duration) {
	p.published.Inc()
	p.publishLat.Observe(d.Seconds())
}

func (p *Prom) MessageDelivered(msgType string) { p.delivered.WithLabelValues(msgType).Inc() }
func (p *Prom) MessageDropped(msgType string)   { p.dropped.WithLabelValues(msgType).Inc() }
func (p *Prom) SendFailed()                     { p.sendFail.Inc() }
func (p *Prom) AlertRaised(severity string)     { p.alerts.WithLabelValues(severity).Inc() }
func (p *Prom) StoreError(op string)            { p.storeErrs.WithLabelValues(op).Inc() }

func (p *Prom) CommandSubmitted(command string, success bool) {
	p.commands.WithLabelValues(command, strconv.FormatBool(success)).Inc()
}
