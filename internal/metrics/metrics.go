// Package metrics holds the Prometheus collectors of the operator console.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Commands     *prometheus.CounterVec
	PollTicks    *prometheus.CounterVec
	PartialHits  prometheus.Counter
	Commits      *prometheus.CounterVec
	Feedback     *prometheus.CounterVec
	Pollers      prometheus.Gauge
	CallDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg when reg is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voiceattend",
			Name:      "session_commands_total",
			Help:      "Session control commands by kind and outcome.",
		}, []string{"command", "outcome"}),
		PollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voiceattend",
			Name:      "poll_ticks_total",
			Help:      "Poll ticks by observed session status.",
		}, []string{"status"}),
		PartialHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voiceattend",
			Name:      "partial_merges_total",
			Help:      "Partial records merged into a roster.",
		}),
		Commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voiceattend",
			Name:      "commits_total",
			Help:      "Batch write-backs by outcome.",
		}, []string{"outcome"}),
		Feedback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voiceattend",
			Name:      "feedback_total",
			Help:      "Operator verdicts by verdict and outcome.",
		}, []string{"verdict", "outcome"}),
		Pollers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voiceattend",
			Name:      "pollers_running",
			Help:      "Session pollers currently running.",
		}),
		CallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voiceattend",
			Name:      "service_call_seconds",
			Help:      "Attendance service call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"call", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.Commands, m.PollTicks, m.PartialHits, m.Commits, m.Feedback, m.Pollers, m.CallDuration)
	}
	return m
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// Command counts a session command.
func (m *Metrics) Command(command string, err error) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(command, outcome(err)).Inc()
}

// Tick counts a poll tick. An empty status counts as an error; statuses other
// than recording, paused and completed count as in_progress.
func (m *Metrics) Tick(status string) {
	if m == nil {
		return
	}
	m.PollTicks.WithLabelValues(tickLabel(status)).Inc()
}

func tickLabel(status string) string {
	switch status {
	case "":
		return "error"
	case "recording", "paused", "completed":
		return status
	}
	return "in_progress"
}

// Merged counts merged partial records.
func (m *Metrics) Merged(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.PartialHits.Add(float64(n))
}

// Commit counts a write-back.
func (m *Metrics) Commit(err error) {
	if m == nil {
		return
	}
	m.Commits.WithLabelValues(outcome(err)).Inc()
}

// FeedbackSent counts a verdict report.
func (m *Metrics) FeedbackSent(verdict string, err error) {
	if m == nil {
		return
	}
	m.Feedback.WithLabelValues(verdict, outcome(err)).Inc()
}

// PollerStarted and PollerStopped track running pollers.
func (m *Metrics) PollerStarted() {
	if m != nil {
		m.Pollers.Inc()
	}
}

func (m *Metrics) PollerStopped() {
	if m != nil {
		m.Pollers.Dec()
	}
}

// ObserveCall matches voiceclient.Observer.
func (m *Metrics) ObserveCall(call string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.CallDuration.WithLabelValues(call, outcome(err)).Observe(time.Since(started).Seconds())
}
