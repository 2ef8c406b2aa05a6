package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/avatarsync/pkg/metrics"
)

// objectStoreMetrics is the Prometheus implementation of metrics.ObjectStoreMetrics.
//
// This implementation collects:
//   - Operation counts by operation and status
//   - Operation latency
//   - Bytes written
type objectStoreMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesWritten      prometheus.Counter
}

// NewObjectStoreMetrics creates a Prometheus-backed ObjectStoreMetrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// leaves the object store uninstrumented.
func NewObjectStoreMetrics() metrics.ObjectStoreMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return newObjectStoreMetrics(metrics.GetRegistry())
}

func newObjectStoreMetrics(reg prometheus.Registerer) *objectStoreMetrics {
	return &objectStoreMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "avatarsync_object_operations_total",
				Help: "Total number of object store operations by operation type and status",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "avatarsync_object_operation_duration_seconds",
				Help: "Duration of object store operations in seconds",
				Buckets: []float64{
					0.01,  // 10ms
					0.025, // 25ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.25,  // 250ms
					0.5,   // 500ms
					1.0,   // 1s
					2.5,   // 2.5s
					5.0,   // 5s
				},
			},
			[]string{"operation"},
		),
		bytesWritten: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "avatarsync_object_bytes_written_total",
				Help: "Total bytes written to the object store",
			},
		),
	}
}

func (m *objectStoreMetrics) ObserveOperation(operation string, err error, duration time.Duration, bytes int) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if operation == metrics.OpPut && err == nil && bytes > 0 {
		m.bytesWritten.Add(float64(bytes))
	}
}

// cacheMetrics is the Prometheus implementation of metrics.CacheMetrics.
type cacheMetrics struct {
	lookups       *prometheus.CounterVec
	invalidations *prometheus.CounterVec
}

// NewCacheMetrics creates a Prometheus-backed CacheMetrics.
//
// Returns a no-op implementation if metrics are not enabled.
func NewCacheMetrics() metrics.CacheMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopCacheMetrics()
	}
	return newCacheMetrics(metrics.GetRegistry())
}

func newCacheMetrics(reg prometheus.Registerer) *cacheMetrics {
	return &cacheMetrics{
		lookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "avatarsync_url_cache_lookups_total",
				Help: "Total number of URL cache lookups by result",
			},
			[]string{"result"},
		),
		invalidations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "avatarsync_url_cache_invalidations_total",
				Help: "Total number of URL cache invalidations by reason",
			},
			[]string{"reason"},
		),
	}
}

func (m *cacheMetrics) RecordLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.WithLabelValues(result).Inc()
}

func (m *cacheMetrics) RecordInvalidation(reason string) {
	m.invalidations.WithLabelValues(reason).Inc()
}
