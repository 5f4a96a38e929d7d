package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/yurykabanov/sweeper/pkg/domain"
)

const (
	namespace = "sweeper"
	subsystem = "retention"
)

const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// RetentionMetrics holds metrics of retention runs.
type RetentionMetrics struct {
	// RunsInProgress tracks runs which hold a run marker in this process.
	RunsInProgress prometheus.Gauge

	// RunsTotal counts finished runs by status.
	RunsTotal *prometheus.CounterVec

	// RunDuration observes wall time of finished runs.
	RunDuration prometheus.Histogram

	// RunErrorsTotal counts per-commit and aggregated errors reported by runs.
	RunErrorsTotal prometheus.Counter

	// CommitsTotal counts processed commits by outcome.
	CommitsTotal *prometheus.CounterVec

	AssetsDeletedTotal prometheus.Counter
	BytesFreedTotal    prometheus.Counter

	// StaleRunsRecoveredTotal counts run markers cleared by recovery.
	StaleRunsRecoveredTotal prometheus.Counter

	// LastRunTimestamp is the unix time of the last finished run.
	LastRunTimestamp prometheus.Gauge
}

// NewRetentionMetrics creates retention metrics registered with the default registry.
func NewRetentionMetrics() *RetentionMetrics {
	return NewRetentionMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewRetentionMetricsWithRegistry creates retention metrics registered with a custom registry.
func NewRetentionMetricsWithRegistry(reg prometheus.Registerer) *RetentionMetrics {
	factory := promauto.With(reg)

	return &RetentionMetrics{
		RunsInProgress: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "runs_in_progress",
				Help:      "Number of retention runs currently in progress.",
			},
		),
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "runs_total",
				Help:      "Total number of finished retention runs by status.",
			},
			[]string{"status"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "run_duration_seconds",
				Help:      "Duration of retention runs in seconds.",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
			},
		),
		RunErrorsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "run_errors_total",
				Help:      "Total number of errors reported by retention runs.",
			},
		),
		CommitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "commits_total",
				Help:      "Total number of commits processed by retention, by outcome.",
			},
			[]string{"outcome"},
		),
		AssetsDeletedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "assets_deleted_total",
				Help:      "Total number of deployed files deleted.",
			},
		),
		BytesFreedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "bytes_freed_total",
				Help:      "Total number of bytes freed in the blob store.",
			},
		),
		StaleRunsRecoveredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "stale_runs_recovered_total",
				Help:      "Total number of stale run markers cleared.",
			},
		),
		LastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time of the last finished retention run.",
			},
		),
	}
}

func (m *RetentionMetrics) RunStarted() {
	m.RunsInProgress.Inc()
}

func (m *RetentionMetrics) RunFinished(summary domain.RunSummary) {
	m.RunsInProgress.Dec()

	status := StatusSucceeded
	if summary.Failed {
		status = StatusFailed
	}
	m.RunsTotal.WithLabelValues(status).Inc()

	m.RunErrorsTotal.Add(float64(len(summary.Errors)))

	if !summary.StartedAt.IsZero() && summary.FinishedAt.After(summary.StartedAt) {
		m.RunDuration.Observe(summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	}

	if !summary.FinishedAt.IsZero() {
		m.LastRunTimestamp.Set(float64(summary.FinishedAt.Unix()))
	}
}

func (m *RetentionMetrics) CommitProcessed(outcome string, assets int, freedBytes int64) {
	m.CommitsTotal.WithLabelValues(outcome).Inc()
	m.AssetsDeletedTotal.Add(float64(assets))
	m.BytesFreedTotal.Add(float64(freedBytes))
}

func (m *RetentionMetrics) StaleRunsRecovered(n int) {
	m.StaleRunsRecoveredTotal.Add(float64(n))
}
