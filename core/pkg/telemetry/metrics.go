package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "togglecache"

// Refresh outcomes recorded by the engine.
const (
	RefreshInstalled = "installed"
	RefreshUnchanged = "unchanged"
	RefreshRetained  = "retained"
	RefreshEmpty     = "empty"
	RefreshFailed    = "failed"
)

// Metrics tracks refresh engine, source and evaluation activity.
//
// Metrics:
//   - togglecache_refresh_total: refresh cycles by result
//   - togglecache_source_requests_total: source calls by operation and outcome
//   - togglecache_evaluations_total: boolean resolutions by reason
//   - togglecache_snapshot_toggles: toggles in the installed snapshot
//   - togglecache_refresh_retry_attempt: consecutive failed refresh cycles
//   - togglecache_snapshot_installed_timestamp_seconds: last snapshot swap
//
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	refreshTotal   *prometheus.CounterVec
	sourceRequests *prometheus.CounterVec
	evaluations    *prometheus.CounterVec
	toggles        prometheus.Gauge
	retryAttempt   prometheus.Gauge
	installedAt    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with registry.
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		refreshTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_total",
				Help:      "Total number of refresh cycles by result",
			},
			[]string{"result"},
		),
		sourceRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_requests_total",
				Help:      "Total number of source attempts by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of boolean resolutions by reason",
			},
			[]string{"reason"},
		),
		toggles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_toggles",
			Help:      "Number of toggles in the installed snapshot",
		}),
		retryAttempt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "refresh_retry_attempt",
			Help:      "Consecutive failed refresh cycles",
		}),
		installedAt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_installed_timestamp_seconds",
			Help:      "Unix time the current snapshot was installed",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.refreshTotal,
		m.sourceRequests,
		m.evaluations,
		m.toggles,
		m.retryAttempt,
		m.installedAt,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *Metrics) RecordRefresh(result string) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordSourceRequest(operation, outcome string) {
	if m == nil {
		return
	}
	m.sourceRequests.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) RecordEvaluation(reason string) {
	if m == nil {
		return
	}
	m.evaluations.WithLabelValues(reason).Inc()
}

// SnapshotInstalled updates the snapshot gauges after a swap.
func (m *Metrics) SnapshotInstalled(toggles int) {
	if m == nil {
		return
	}
	m.toggles.Set(float64(toggles))
	m.installedAt.SetToCurrentTime()
}

func (m *Metrics) SetRetryAttempt(attempt int) {
	if m == nil {
		return
	}
	m.retryAttempt.Set(float64(attempt))
}
