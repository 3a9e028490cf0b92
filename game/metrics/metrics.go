// Package metrics holds the Prometheus collectors of the game.
//
// Every method accepts a nil receiver so components can run without metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "akibot"

// Session end reasons.
const (
	ReasonCancel      = "cancel"
	ReasonVictory     = "victory"
	ReasonDefeat      = "defeat"
	ReasonExpired     = "expired"
	ReasonEngineError = "engine_error"
	ReasonLock        = "lock"
)

// Metrics groups the game collectors.
type Metrics struct {
	active         prometheus.Gauge
	started        prometheus.Counter
	ended          *prometheus.CounterVec
	answers        *prometheus.CounterVec
	engineCalls    *prometheus.CounterVec
	engineDuration *prometheus.HistogramVec
	evictions      prometheus.Counter
	gateRejections *prometheus.CounterVec
	updates        *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
// A nil reg leaves them unregistered, which tests use to read values directly.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of live game sessions.",
		}),
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_started_total",
			Help:      "Game sessions created.",
		}),
		ended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Game sessions removed, by reason.",
		}, []string{"reason"}),
		answers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Answers forwarded to the engine.",
		}, []string{"answer"}),
		engineCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_calls_total",
			Help:      "Engine calls by operation and status.",
		}, []string{"op", "status"}),
		engineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_call_duration_seconds",
			Help:      "Engine call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeper_evictions_total",
			Help:      "Sessions evicted by the expiry sweeper.",
		}),
		gateRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_rejections_total",
			Help:      "Actions rejected by the lock gate, by reason.",
		}, []string{"reason"}),
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Telegram updates handled, by kind and status.",
		}, []string{"kind", "status"}),
	}
	if reg != nil {
		reg.MustRegister(
			m.active,
			m.started,
			m.ended,
			m.answers,
			m.engineCalls,
			m.engineDuration,
			m.evictions,
			m.gateRejections,
			m.updates,
		)
	}
	return m
}

// SetActive records the number of live sessions.
func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.active.Set(float64(n))
}

// SessionStarted counts a created session.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.started.Inc()
}

// SessionEnded counts a removed session.
func (m *Metrics) SessionEnded(reason string) {
	if m == nil {
		return
	}
	m.ended.WithLabelValues(reason).Inc()
}

// Answer counts an answer forwarded to the engine.
func (m *Metrics) Answer(answer string) {
	if m == nil {
		return
	}
	m.answers.WithLabelValues(answer).Inc()
}

// EngineCall records one engine round trip.
func (m *Metrics) EngineCall(op string, err error, took time.Duration) {
	if m == nil {
		return
	}
	m.engineCalls.WithLabelValues(op, status(err)).Inc()
	m.engineDuration.WithLabelValues(op).Observe(took.Seconds())
}

// Evicted counts sessions removed by one sweep.
func (m *Metrics) Evicted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.Add(float64(n))
}

// GateRejected counts an action rejected by the gate.
func (m *Metrics) GateRejected(reason string) {
	if m == nil {
		return
	}
	m.gateRejections.WithLabelValues(reason).Inc()
}

// ObserveUpdate counts a handled Telegram update.
func (m *Metrics) ObserveUpdate(kind string, err error) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(kind, status(err)).Inc()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
