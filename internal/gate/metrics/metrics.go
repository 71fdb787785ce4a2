package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for gated action execution.
type Metrics struct {
	// Permission decisions by operation and outcome (allowed, denied)
	Decisions *prometheus.CounterVec

	// Terminal outcomes by operation and audit status
	Outcomes *prometheus.CounterVec

	// Wall time of one execution including the audit write
	ExecuteLatency *prometheus.HistogramVec

	// Executions that failed because their entry could not be recorded
	AuditFailures prometheus.Counter
}

// New creates a Metrics instance registered with reg, or with the default
// registerer when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opgate_gate_decisions_total",
			Help: "Total permission decisions by operation and outcome",
		}, []string{"operation", "outcome"}),

		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opgate_gate_outcomes_total",
			Help: "Total gated executions by operation and recorded status",
		}, []string{"operation", "status"}),

		ExecuteLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "opgate_gate_execute_duration_seconds",
			Help:    "Duration of gated executions including the audit write",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"operation"}),

		AuditFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "opgate_gate_audit_failures_total",
			Help: "Total gated executions failed because the audit entry was not persisted",
		}),
	}
}

// IncrementDecision records one permission decision.
func (m *Metrics) IncrementDecision(operation string, allowed bool) {
	if m != nil {
		outcome := "denied"
		if allowed {
			outcome = "allowed"
		}
		m.Decisions.WithLabelValues(operation, outcome).Inc()
	}
}

// IncrementOutcome records the status an execution ended with.
func (m *Metrics) IncrementOutcome(operation, status string) {
	if m != nil {
		m.Outcomes.WithLabelValues(operation, status).Inc()
	}
}

// ObserveExecuteLatency records the total execution duration.
func (m *Metrics) ObserveExecuteLatency(operation string, d time.Duration) {
	if m != nil {
		m.ExecuteLatency.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// IncrementAuditFailure records an execution that failed closed.
func (m *Metrics) IncrementAuditFailure() {
	if m != nil {
		m.AuditFailures.Inc()
	}
}
