package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the stream mirror.
type Metrics struct {
	Published           prometheus.Counter
	Dropped             prometheus.Counter
	PublishFailures     prometheus.Counter
	CircuitBreakerState prometheus.Gauge
	Buffered            prometheus.Gauge
}

// NewMetrics registers the mirror metrics with reg, or with the default
// registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Name: "opgate_audit_stream_published_total",
			Help: "Total number of audit entries mirrored to the stream",
		}),
		Dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "opgate_audit_stream_dropped_total",
			Help: "Total number of audit entries dropped because the mirror buffer was full",
		}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "opgate_audit_stream_publish_failures_total",
			Help: "Total number of failed publish attempts",
		}),
		CircuitBreakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opgate_audit_stream_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}),
		Buffered: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opgate_audit_stream_buffered",
			Help: "Audit entries waiting to be mirrored",
		}),
	}
}

// AddPublished counts n mirrored entries.
func (m *Metrics) AddPublished(n int) {
	if m != nil {
		m.Published.Add(float64(n))
	}
}

// IncDropped counts one entry lost to overflow.
func (m *Metrics) IncDropped() {
	if m != nil {
		m.Dropped.Inc()
	}
}

// IncPublishFailures counts one failed publish attempt.
func (m *Metrics) IncPublishFailures() {
	if m != nil {
		m.PublishFailures.Inc()
	}
}

// SetCircuitBreakerState sets the circuit breaker state gauge.
func (m *Metrics) SetCircuitBreakerState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitBreakerState.Set(1)
	} else {
		m.CircuitBreakerState.Set(0)
	}
}

// SetBuffered reports the current buffer depth.
func (m *Metrics) SetBuffered(n int) {
	if m != nil {
		m.Buffered.Set(float64(n))
	}
}
