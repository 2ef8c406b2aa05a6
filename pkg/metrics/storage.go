package metrics

import "time"

// Object store operations reported by ObserveOperation.
const (
	OpPut    = "put"
	OpExists = "exists"
	OpDelete = "delete"
)

// ObjectStoreMetrics provides observability for object store calls.
//
// This interface is optional - a nil value disables instrumentation.
type ObjectStoreMetrics interface {
	// ObserveOperation records one object store call.
	//
	// Parameters:
	//   - operation: one of the Op* constants
	//   - err: the call's error (nil for success)
	//   - duration: wall time of the call
	//   - bytes: payload size for puts, key count for deletes
	ObserveOperation(operation string, err error, duration time.Duration, bytes int)
}

// CacheMetrics provides observability for the URL cache.
type CacheMetrics interface {
	// RecordLookup counts one cache lookup.
	RecordLookup(hit bool)

	// RecordInvalidation counts entries dropped, labelled by reason.
	RecordInvalidation(reason string)
}

type noopCacheMetrics struct{}

// NewNoopCacheMetrics returns a CacheMetrics that discards everything.
func NewNoopCacheMetrics() CacheMetrics {
	return noopCacheMetrics{}
}

func (noopCacheMetrics) RecordLookup(bool)         {}
func (noopCacheMetrics) RecordInvalidation(string) {}
