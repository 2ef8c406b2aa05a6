package objects

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/avatarsync/pkg/metrics"
)

// instrumented decorates a Store with operation metrics.
type instrumented struct {
	inner   Store
	metrics metrics.ObjectStoreMetrics
}

// Instrument wraps s so every call is reported to m. A nil m returns s
// unchanged.
func Instrument(s Store, m metrics.ObjectStoreMetrics) Store {
	if m == nil {
		return s
	}
	return &instrumented{inner: s, metrics: m}
}

func (i *instrumented) Put(ctx context.Context, key string, data []byte, contentType string) error {
	start := time.Now()
	err := i.inner.Put(ctx, key, data, contentType)
	i.metrics.ObserveOperation(metrics.OpPut, err, time.Since(start), len(data))
	return err
}

func (i *instrumented) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := i.inner.Exists(ctx, key)
	i.metrics.ObserveOperation(metrics.OpExists, err, time.Since(start), 0)
	return ok, err
}

func (i *instrumented) DeleteBatch(ctx context.Context, keys []string) (map[string]error, error) {
	start := time.Now()
	failures, err := i.inner.DeleteBatch(ctx, keys)
	if err == nil && len(failures) > 0 {
		i.metrics.ObserveOperation(metrics.OpDelete, fmt.Errorf("%d keys failed", len(failures)), time.Since(start), len(keys))
	} else {
		i.metrics.ObserveOperation(metrics.OpDelete, err, time.Since(start), len(keys))
	}
	return failures, err
}

// Get forwards to the wrapped store when it is a Reader.
func (i *instrumented) Get(ctx context.Context, key string) ([]byte, error) {
	r, ok := i.inner.(Reader)
	if !ok {
		return nil, fmt.Errorf("object store does not support reads")
	}
	return r.Get(ctx, key)
}
