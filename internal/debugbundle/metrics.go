package debugbundle

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors registered for the
// debug-bundle service (spec.md SPEC_FULL.md §3/§9 DOMAIN additions).
type Metrics struct {
	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram
}

// NewMetrics constructs and registers the collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "debugbundle_runs_total",
			Help: "Total debug-bundle collector runs, by terminal status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "debugbundle_run_duration_seconds",
			Help:    "Wall-clock duration of debug-bundle collector runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
	reg.MustRegister(m.RunsTotal, m.RunDuration)
	return m
}
