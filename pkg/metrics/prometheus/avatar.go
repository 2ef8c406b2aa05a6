package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/avatarsync/pkg/metrics"
)

// avatarMetrics is the Prometheus implementation of metrics.AvatarMetrics.
type avatarMetrics struct {
	uploadsTotal       *prometheus.CounterVec
	uploadDuration     *prometheus.HistogramVec
	retriesTotal       *prometheus.CounterVec
	rollbacksTotal     *prometheus.CounterVec
	cleanupFailures    prometheus.Counter
	activeTransactions prometheus.Gauge
	staleSwept         prometheus.Counter
}

// NewAvatarMetrics creates a Prometheus-backed AvatarMetrics registered on
// the global registry.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewAvatarMetrics() metrics.AvatarMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopAvatarMetrics()
	}
	return NewAvatarMetricsWith(metrics.GetRegistry())
}

// NewAvatarMetricsWith registers the avatar metrics on reg.
func NewAvatarMetricsWith(reg prometheus.Registerer) metrics.AvatarMetrics {
	return newAvatarMetrics(reg)
}

func newAvatarMetrics(reg prometheus.Registerer) *avatarMetrics {
	return &avatarMetrics{
		uploadsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "avatarsync_uploads_total",
				Help: "Total number of avatar upload attempts by outcome",
			},
			[]string{"outcome"},
		),
		uploadDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "avatarsync_upload_duration_seconds",
				Help: "Duration of avatar upload attempts in seconds",
				Buckets: []float64{
					0.05, // 50ms
					0.1,  // 100ms
					0.25, // 250ms
					0.5,  // 500ms
					1.0,  // 1s
					2.5,  // 2.5s
					5.0,  // 5s
					10.0, // 10s
					30.0, // 30s
				},
			},
			[]string{"outcome"},
		),
		retriesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "avatarsync_retries_total",
				Help: "Total number of upload retries by error kind",
			},
			[]string{"kind"},
		),
		rollbacksTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "avatarsync_rollbacks_total",
				Help: "Total number of rollbacks by result",
			},
			[]string{"result"},
		),
		cleanupFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "avatarsync_rollback_cleanup_failures_total",
				Help: "Total number of object keys rollback failed to delete",
			},
		),
		activeTransactions: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "avatarsync_active_transactions",
				Help: "Current number of open upload transactions",
			},
		),
		staleSwept: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "avatarsync_stale_transactions_swept_total",
				Help: "Total number of stale transactions removed",
			},
		),
	}
}

func (m *avatarMetrics) ObserveUpload(outcome string, duration time.Duration) {
	m.uploadsTotal.WithLabelValues(outcome).Inc()
	m.uploadDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *avatarMetrics) RecordRetry(kind string) {
	m.retriesTotal.WithLabelValues(kind).Inc()
}

func (m *avatarMetrics) RecordRollback(result string) {
	m.rollbacksTotal.WithLabelValues(result).Inc()
}

func (m *avatarMetrics) RecordCleanupFailures(n int) {
	if n > 0 {
		m.cleanupFailures.Add(float64(n))
	}
}

func (m *avatarMetrics) SetActiveTransactions(n int) {
	m.activeTransactions.Set(float64(n))
}

func (m *avatarMetrics) RecordStaleSwept(n int) {
	if n > 0 {
		m.staleSwept.Add(float64(n))
	}
}
