package jobs

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsTrackRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track(TaskTypeSendEmail).End(nil))

	failure := errors.New("smtp down")
	require.ErrorIs(t, m.Track(TaskTypeSendEmail).End(failure), failure)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(TaskTypeSendEmail, "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(TaskTypeSendEmail, "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues(TaskTypeSendEmail)))
}

func TestMetricsScrapeableFromRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	_ = m.Track(TaskTypeSendEmail).End(nil)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, names, "preventa_jobs_total")
	assert.Contains(t, names, "preventa_job_duration_seconds")
}
