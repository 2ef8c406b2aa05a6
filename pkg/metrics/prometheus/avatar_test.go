package prometheus

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/marmos91/avatarsync/pkg/metrics"
)

func TestAvatarMetricsRecords(t *testing.T) {
	m := newAvatarMetrics(prometheus.NewRegistry())

	m.ObserveUpload(metrics.OutcomeSuccess, 120*time.Millisecond)
	m.ObserveUpload(metrics.OutcomeSuccess, 80*time.Millisecond)
	m.ObserveUpload(metrics.OutcomeRolledBack, time.Second)
	m.RecordRetry("UPLOAD_FAILED")
	m.RecordRollback("ok")
	m.RecordCleanupFailures(2)
	m.RecordCleanupFailures(0)
	m.SetActiveTransactions(3)
	m.RecordStaleSwept(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.uploadsTotal.WithLabelValues(metrics.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploadsTotal.WithLabelValues(metrics.OutcomeRolledBack)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retriesTotal.WithLabelValues("UPLOAD_FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rollbacksTotal.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cleanupFailures))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeTransactions))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.staleSwept))
	assert.Equal(t, 2, testutil.CollectAndCount(m.uploadDuration))
}

func TestNewAvatarMetricsDisabled(t *testing.T) {
	if metrics.IsEnabled() {
		t.Skip("global registry already initialized")
	}
	m := NewAvatarMetrics()
	assert.NotPanics(t, func() {
		m.ObserveUpload(metrics.OutcomeSuccess, time.Millisecond)
		m.SetActiveTransactions(1)
	})
}
