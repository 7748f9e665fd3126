package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RecordsValues(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	m.RecordRefresh(RefreshInstalled)
	m.RecordRefresh(RefreshInstalled)
	m.RecordSourceRequest("check", "success")
	m.RecordEvaluation("STATIC")
	m.SnapshotInstalled(7)
	m.SetRetryAttempt(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.refreshTotal.WithLabelValues(RefreshInstalled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sourceRequests.WithLabelValues("check", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evaluations.WithLabelValues("STATIC")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.toggles))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.retryAttempt))
	assert.Positive(t, testutil.ToFloat64(m.installedAt))
}

func TestNewMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewMetrics(reg)
	require.NoError(t, err)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRefresh(RefreshFailed)
		m.RecordSourceRequest("fetch", "error")
		m.RecordEvaluation("DEFAULT")
		m.SnapshotInstalled(1)
		m.SetRetryAttempt(1)
	})
}
