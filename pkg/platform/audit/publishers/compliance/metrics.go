package compliance

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "opgate/pkg/platform/audit"
)

// Metrics holds Prometheus metrics for the compliance publisher.
type Metrics struct {
	EventsEmitted   *prometheus.CounterVec
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

// NewMetrics registers the publisher metrics with reg, or with the default
// registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		EventsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "opgate_audit_entries_recorded_total",
			Help: "Total number of audit entries durably recorded, by status",
		}, []string{"status"}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "opgate_audit_persist_failures_total",
			Help: "Total number of audit entries that could not be persisted",
		}),
		PersistDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "opgate_audit_persist_duration_seconds",
			Help:    "Duration of synchronous audit writes",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}),
	}
}

// IncEventsEmitted counts one recorded entry.
func (m *Metrics) IncEventsEmitted(status audit.Status) {
	if m != nil {
		m.EventsEmitted.WithLabelValues(status.String()).Inc()
	}
}

// IncPersistFailures counts one entry lost to a backend failure.
func (m *Metrics) IncPersistFailures() {
	if m != nil {
		m.PersistFailures.Inc()
	}
}

// ObservePersistDuration records how long a write took.
func (m *Metrics) ObservePersistDuration(d time.Duration) {
	if m != nil {
		m.PersistDuration.Observe(d.Seconds())
	}
}
