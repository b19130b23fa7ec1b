// Package metrics exposes Prometheus instrumentation for the
// integration job service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors the job service updates.
type Metrics struct {
	// JobsTotal counts finished jobs by terminal status.
	JobsTotal *prometheus.CounterVec

	// JobsInFlight tracks currently running jobs.
	JobsInFlight prometheus.Gauge

	// JobDuration observes wall-clock job durations in seconds.
	JobDuration prometheus.Histogram

	// SamplesTotal counts integrand samples assigned to finished jobs.
	SamplesTotal prometheus.Counter
}

// New registers the collectors with reg and returns them.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "strata_jobs_total",
			Help: "Integration jobs by terminal status.",
		}, []string{"status"}),
		JobsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "strata_jobs_in_flight",
			Help: "Integration jobs currently running.",
		}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "strata_job_duration_seconds",
			Help:    "Wall-clock duration of integration jobs.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		SamplesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "strata_samples_total",
			Help: "Integrand samples assigned to finished jobs.",
		}),
	}
}
