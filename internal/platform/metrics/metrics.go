package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds process-level Prometheus metrics.
type Metrics struct {
	TrailEntries prometheus.Gauge
	BuildInfo    *prometheus.GaugeVec
}

// New registers the process metrics with reg, or with the default registerer
// when reg is nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		TrailEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "opgate_audit_trail_entries",
			Help: "Number of entries in the loaded audit trail",
		}),
		BuildInfo: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "opgate_build_info",
			Help: "Build information, value is always 1",
		}, []string{"version", "backend"}),
	}
}

// NewRegistry returns a registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// SetTrailEntries reports the trail size.
func (m *Metrics) SetTrailEntries(n int) {
	if m != nil {
		m.TrailEntries.Set(float64(n))
	}
}

// SetBuildInfo publishes version and backend labels.
func (m *Metrics) SetBuildInfo(version, backend string) {
	if m != nil {
		m.BuildInfo.WithLabelValues(version, backend).Set(1)
	}
}
