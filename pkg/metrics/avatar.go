package metrics

import "time"

// Upload outcomes reported by ObserveUpload.
const (
	OutcomeSuccess      = "success"
	OutcomeInvalid      = "invalid"
	OutcomeRolledBack   = "rolled_back"
	OutcomeRejected     = "rejected"
	OutcomeRollbackFail = "rollback_failed"
)

// AvatarMetrics provides observability for the avatar upload pipeline.
//
// This interface is optional - components that receive nil fall back to a
// no-op implementation.
type AvatarMetrics interface {
	// ObserveUpload records one finished upload attempt.
	//
	// Parameters:
	//   - outcome: one of the Outcome* constants
	//   - duration: wall time from transaction start to return
	ObserveUpload(outcome string, duration time.Duration)

	// RecordRetry counts a retry scheduled after a failure of the given kind.
	RecordRetry(kind string)

	// RecordRollback counts rollbacks by result ("ok" or "failed").
	RecordRollback(result string)

	// RecordCleanupFailures counts object keys that rollback failed to delete.
	RecordCleanupFailures(n int)

	// SetActiveTransactions updates the open transaction gauge.
	SetActiveTransactions(n int)

	// RecordStaleSwept counts transactions removed for being stale.
	RecordStaleSwept(n int)
}

type noopAvatarMetrics struct{}

// NewNoopAvatarMetrics returns an AvatarMetrics that discards everything.
func NewNoopAvatarMetrics() AvatarMetrics {
	return noopAvatarMetrics{}
}

func (noopAvatarMetrics) ObserveUpload(string, time.Duration) {}
func (noopAvatarMetrics) RecordRetry(string)                  {}
func (noopAvatarMetrics) RecordRollback(string)               {}
func (noopAvatarMetrics) RecordCleanupFailures(int)           {}
func (noopAvatarMetrics) SetActiveTransactions(int)           {}
func (noopAvatarMetrics) RecordStaleSwept(int)                {}

// OrNoop returns m, or the no-op implementation when m is nil.
func OrNoop(m AvatarMetrics) AvatarMetrics {
	if m == nil {
		return NewNoopAvatarMetrics()
	}
	return m
}
