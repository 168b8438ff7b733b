package pac

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Command outcomes recorded in pacbridge_commands_total.
const (
	outcomeOK       = "ok"
	outcomeTimeout  = "timeout"
	outcomeCanceled = "canceled"
	outcomeError    = "error"
)

// Metrics records channel activity. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	commands   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inflight   prometheus.Gauge
	discarded  prometheus.Counter
	exits      prometheus.Counter
	handshakes *prometheus.CounterVec
}

// NewMetrics registers the channel collectors on reg. Passing nil uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pacbridge",
			Name:      "commands_total",
			Help:      "Commands sent to pac, by verb and outcome.",
		}, []string{"verb", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pacbridge",
			Name:      "command_duration_seconds",
			Help:      "Time from writing a command to receiving its reply.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}, []string{"verb"}),
		inflight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pacbridge",
			Name:      "commands_in_flight",
			Help:      "Commands written to pac and still awaiting a reply.",
		}),
		discarded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pacbridge",
			Name:      "replies_discarded_total",
			Help:      "Replies dropped because their caller gave up or the channel closed.",
		}),
		exits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pacbridge",
			Name:      "process_exits_total",
			Help:      "Unexpected pac process exits.",
		}),
		handshakes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pacbridge",
			Name:      "handshakes_total",
			Help:      "Startup handshakes, by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) commandStarted() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) commandFinished(verb string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.inflight.Dec()
	m.observe(verb, elapsed, err)
}

func (m *Metrics) observe(verb string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(verb, outcomeOf(err)).Inc()
	if err == nil {
		m.duration.WithLabelValues(verb).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) replyDiscarded() {
	if m == nil {
		return
	}
	m.discarded.Inc()
}

func (m *Metrics) processExited() {
	if m == nil {
		return
	}
	m.exits.Inc()
}

func (m *Metrics) handshake(err error) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(outcomeOf(err)).Inc()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		return outcomeTimeout
	case errors.Is(err, context.Canceled):
		return outcomeCanceled
	default:
		return outcomeError
	}
}
