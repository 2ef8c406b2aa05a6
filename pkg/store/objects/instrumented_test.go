package objects_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/avatarsync/pkg/metrics"
	"github.com/marmos91/avatarsync/pkg/store/objects"
	"github.com/marmos91/avatarsync/pkg/store/objects/memory"
	"github.com/marmos91/avatarsync/pkg/store/objects/storetest"
)

type opRecorder struct {
	mu  sync.Mutex
	ops []string
}

func (r *opRecorder) ObserveOperation(op string, err error, _ time.Duration, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		op += ":error"
	}
	r.ops = append(r.ops, op)
}

func TestInstrumentedStore(t *testing.T) {
	suite := &storetest.Suite{
		NewStore: func(t *testing.T) objects.Store {
			return objects.Instrument(memory.New(), &opRecorder{})
		},
	}
	suite.Run(t)
}

func TestInstrumentRecordsOperations(t *testing.T) {
	ctx := context.Background()
	rec := &opRecorder{}
	s := objects.Instrument(memory.New(), rec)

	require.NoError(t, s.Put(ctx, "a.jpg", []byte("x"), "image/jpeg"))
	_, err := s.Exists(ctx, "a.jpg")
	require.NoError(t, err)
	_, err = s.DeleteBatch(ctx, []string{"a.jpg"})
	require.NoError(t, err)
	assert.Error(t, s.Put(ctx, "", []byte("x"), "image/jpeg"))

	assert.Equal(t, []string{metrics.OpPut, metrics.OpExists, metrics.OpDelete, metrics.OpPut + ":error"}, rec.ops)
}

func TestInstrumentNilMetrics(t *testing.T) {
	inner := memory.New()
	assert.Same(t, inner, objects.Instrument(inner, nil))
}
