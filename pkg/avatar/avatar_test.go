package avatar

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLSetAccessors(t *testing.T) {
	var u URLSet
	assert.True(t, u.IsEmpty())

	for _, v := range Variants() {
		u.Set(v, "https://cdn/"+string(v))
	}

	assert.True(t, u.IsComplete())
	assert.Equal(t, "https://cdn/medium", u.Get(VariantMedium))
	assert.Equal(t, "", u.Get(Variant("huge")))
}

func TestURLSetMerge(t *testing.T) {
	base := URLSet{Thumbnail: "t0", Medium: "m0"}
	merged := base.Merge(URLSet{Medium: "m1", Legacy: "l1"})

	assert.Equal(t, URLSet{Thumbnail: "t0", Medium: "m1", Legacy: "l1"}, merged)
	assert.Equal(t, "m0", base.Medium, "merge must not mutate the receiver")
}

func TestParseVariant(t *testing.T) {
	v, ok := ParseVariant("full")
	require.True(t, ok)
	assert.Equal(t, VariantFull, v)

	_, ok = ParseVariant("FULL")
	assert.False(t, ok)
}

func TestStageOrdering(t *testing.T) {
	order := []Stage{StageValidation, StageProcessing, StageUploading, StageUpdating, StageSyncing, StageComplete}
	for i := 1; i < len(order); i++ {
		assert.Less(t, order[i-1], order[i])
	}
	assert.Equal(t, "syncing", StageSyncing.String())
}

func TestRetryPolicyTable(t *testing.T) {
	tests := []struct {
		kind       Kind
		retryable  bool
		maxRetries int
		delay      time.Duration
	}{
		{KindInvalidFile, false, 0, 0},
		{KindFileTooLarge, false, 0, 0},
		{KindProcessingFailed, true, 2, 2 * time.Second},
		{KindUploadFailed, true, 3, 3 * time.Second},
		{KindDatabaseUpdateFailed, true, 2, time.Second},
		{KindRollbackFailed, false, 0, 0},
		{KindSyncFailed, true, 1, 5 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			p := PolicyFor(tt.kind)
			assert.Equal(t, tt.retryable, p.Retryable)
			assert.Equal(t, tt.maxRetries, p.MaxRetries)
			assert.Equal(t, tt.delay, p.Delay)
			assert.NotEmpty(t, Guidance(tt.kind))
		})
	}
}

func TestErrorRecoverable(t *testing.T) {
	assert.False(t, NewError(KindRollbackFailed, "restore failed", ErrorContext{}, nil).Recoverable)
	assert.True(t, NewError(KindUploadFailed, "put failed", ErrorContext{}, nil).Recoverable)
}

func TestErrorChain(t *testing.T) {
	cause := errors.New("connection reset")
	typed := NewError(KindUploadFailed, "failed to store thumbnail", ErrorContext{UserID: "U1"}, cause)
	wrapped := fmt.Errorf("attempt 2: %w", typed)

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindUploadFailed, kind)
	assert.True(t, IsRetryable(wrapped))
	assert.True(t, IsKind(wrapped, KindUploadFailed))
	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, typed.Error(), "UPLOAD_FAILED")
	assert.Contains(t, typed.Error(), "connection reset")
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil, KindUploadFailed, "x", ErrorContext{}))

	typed := Errorf(KindProcessingFailed, "bad image")
	assert.Same(t, typed, Wrap(typed, KindUploadFailed, "x", ErrorContext{}))

	plain := errors.New("boom")
	wrapped := Wrap(plain, KindUploadFailed, "upload failed", ErrorContext{UserID: "U1"})
	e, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, KindUploadFailed, e.Kind)
	assert.True(t, e.Recoverable)
	assert.Equal(t, "U1", e.Context.UserID)
	assert.False(t, IsRetryable(plain))
}

func TestHooksTolerateNil(t *testing.T) {
	var h UploadHooks
	assert.NotPanics(t, func() {
		h.EmitProgress(ProgressEvent{Stage: StageUploading})
		h.RecordStored("k1")
	})
}
