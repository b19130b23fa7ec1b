package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	require.NotNil(t, m)
	m.JobsTotal.WithLabelValues("completed").Inc()
	m.JobsTotal.WithLabelValues("failed").Add(2)
	m.JobsInFlight.Inc()
	m.JobDuration.Observe(0.25)
	m.SamplesTotal.Add(10000000)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["strata_jobs_total"])
	assert.True(t, names["strata_jobs_in_flight"])
	assert.True(t, names["strata_job_duration_seconds"])
	assert.True(t, names["strata_samples_total"])
}

func TestNew_CountsByStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.JobsTotal.WithLabelValues("completed").Inc()
	m.JobsTotal.WithLabelValues("completed").Inc()
	m.JobsTotal.WithLabelValues("cancelled").Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != "strata_jobs_total" {
			continue
		}
		byStatus := make(map[string]float64)
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "status" {
					byStatus[label.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
		assert.Equal(t, 2.0, byStatus["completed"])
		assert.Equal(t, 1.0, byStatus["cancelled"])
		return
	}
	t.Fatal("strata_jobs_total not gathered")
}

func TestNew_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) }, "promauto panics on duplicate collectors")
}
