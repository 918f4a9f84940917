package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"streakd/internal/runner"
)

// Metrics provides observability for the control surface. All metrics are
// registered on a per-server registry so tests can build servers freely.
type Metrics struct {
	// Run triggers by source ("api", "schedule") and outcome
	// ("accepted", "rejected").
	RunTriggers *prometheus.CounterVec

	// Completed runs by result ("completed", "failed").
	Runs *prometheus.CounterVec

	// Per-contact delivery outcomes across all runs.
	MessagesSent   prometheus.Counter
	MessagesFailed prometheus.Counter

	// Identities requested but not found in the last completed run.
	ResolutionDeficit prometheus.Gauge

	// Contact store mutations by operation ("add", "remove").
	ContactOps *prometheus.CounterVec
}

// NewMetrics creates and registers the control-surface metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunTriggers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streakd_run_triggers_total",
			Help: "Run trigger requests by source and outcome",
		}, []string{"source", "outcome"}),

		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streakd_runs_total",
			Help: "Completed runs by result",
		}, []string{"result"}),

		MessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "streakd_messages_sent_total",
			Help: "Streak messages delivered",
		}),

		MessagesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "streakd_messages_failed_total",
			Help: "Streak messages that exhausted all delivery attempts",
		}),

		ResolutionDeficit: factory.NewGauge(prometheus.GaugeOpts{
			Name: "streakd_resolution_deficit",
			Help: "Target contacts not found in the last completed run",
		}),

		ContactOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "streakd_contact_ops_total",
			Help: "Contact store mutations by operation",
		}, []string{"op"}),
	}
}

// RecordRun updates run, delivery, and deficit metrics from a finished run.
func (m *Metrics) RecordRun(report *runner.Report, err error) {
	if m == nil {
		return
	}
	result := "completed"
	if err != nil {
		result = "failed"
	}
	m.Runs.WithLabelValues(result).Inc()
	if report == nil {
		return
	}
	sent := report.SuccessCount()
	m.MessagesSent.Add(float64(sent))
	m.MessagesFailed.Add(float64(len(report.Results) - sent))
	m.ResolutionDeficit.Set(float64(report.TargetCount - report.ResolvedCount))
}

// RecordTrigger counts a run trigger request.
func (m *Metrics) RecordTrigger(source string, accepted bool) {
	if m == nil {
		return
	}
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
	}
	m.RunTriggers.WithLabelValues(source, outcome).Inc()
}

// RecordContactOp counts a contact store mutation.
func (m *Metrics) RecordContactOp(op string) {
	if m != nil {
		m.ContactOps.WithLabelValues(op).Inc()
	}
}
