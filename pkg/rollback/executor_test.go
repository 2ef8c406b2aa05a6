package rollback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/avatarsync/pkg/avatar"
	"github.com/marmos91/avatarsync/pkg/store/objects"
	objmemory "github.com/marmos91/avatarsync/pkg/store/objects/memory"
	"github.com/marmos91/avatarsync/pkg/store/records"
	recmemory "github.com/marmos91/avatarsync/pkg/store/records/memory"
	"github.com/marmos91/avatarsync/pkg/txn"
	"github.com/marmos91/avatarsync/pkg/urls"
)

var layout = objects.URLLayout{BaseURL: "https://proj.example.co", Bucket: "avatars"}

var originals = avatar.URLSet{Thumbnail: "a", Medium: "b", Full: "c", Legacy: "d"}

// spyStore records delete calls and can fail them.
type spyStore struct {
	*objmemory.Store
	deletes   [][]string
	deleteErr error
}

func (s *spyStore) DeleteBatch(ctx context.Context, keys []string) (map[string]error, error) {
	s.deletes = append(s.deletes, append([]string(nil), keys...))
	if s.deleteErr != nil {
		return nil, s.deleteErr
	}
	return s.Store.DeleteBatch(ctx, keys)
}

type brokenRecords struct {
	*recmemory.Store
}

func (brokenRecords) Update(context.Context, string, records.Patch) error {
	return errors.New("primary unavailable")
}

type failingInvalidator struct{ calls int }

func (f *failingInvalidator) Invalidate(context.Context, string, urls.InvalidationReason) error {
	f.calls++
	return errors.New("invalidation endpoint down")
}

type countingClearer struct{ calls int }

func (c *countingClearer) ClearCache() { c.calls++ }

type fixture struct {
	objs  *spyStore
	recs  *recmemory.Store
	repo  *urls.Repository
	cache *urls.Cache
	exec  *Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		objs:  &spyStore{Store: objmemory.New()},
		recs:  recmemory.New(),
		cache: urls.NewCache(16, time.Minute),
	}
	f.repo = urls.NewRepository(f.recs, layout, urls.WithCache(f.cache))
	f.exec = NewExecutor(f.objs, f.repo, WithCache(f.cache))
	return f
}

func failedTx(userID string, keys ...string) txn.Transaction {
	return txn.Transaction{
		ID:                 "tx-1",
		UserID:             userID,
		StartedAt:          time.Now(),
		UploadedObjectKeys: keys,
		OriginalURLs:       originals,
		OriginalCaptured:   true,
	}
}

func TestRollbackRestoresAndDeletes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.objs.Put(ctx, "k1", []byte("x"), "image/jpeg"))
	f.recs.Seed("U2", avatar.URLSet{Thumbnail: "new-t", Medium: "new-m"})
	f.cache.Store("U2", avatar.URLSet{Thumbnail: "new-t"})

	tx := failedTx("U2", "k1")
	require.NoError(t, f.exec.Rollback(ctx, tx))

	assert.Equal(t, [][]string{{"k1"}}, f.objs.deletes)
	assert.Equal(t, originals, f.repo.GetCurrent(ctx, "U2"))

	report := f.exec.Validate(ctx, tx)
	assert.True(t, report.FilesCleanedUp)
	assert.True(t, report.URLsRestored)
}

func TestRollbackInvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.cache.Store("U2", avatar.URLSet{Thumbnail: "stale"})

	require.NoError(t, f.exec.Rollback(ctx, failedTx("U2")))
	assert.False(t, f.cache.Contains("U2"))
	assert.True(t, f.exec.Validate(ctx, failedTx("U2")).CacheCleared)
}

func TestRollbackCleanupFailureDoesNotAbort(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.objs.deleteErr = errors.New("throttled")

	require.NoError(t, f.exec.Rollback(ctx, failedTx("U2", "k1", "k2")))
	assert.Equal(t, originals, f.repo.GetCurrent(ctx, "U2"))
}

func TestRollbackRestoreFailure(t *testing.T) {
	ctx := context.Background()
	objs := &spyStore{Store: objmemory.New()}
	repo := urls.NewRepository(brokenRecords{recmemory.New()}, layout)
	exec := NewExecutor(objs, repo)

	err := exec.Rollback(ctx, failedTx("U2", "k1"))
	require.Error(t, err)
	e, ok := avatar.AsError(err)
	require.True(t, ok)
	assert.Equal(t, avatar.KindRollbackFailed, e.Kind)
	assert.False(t, e.Recoverable)
	assert.False(t, e.Retryable())
	assert.Len(t, objs.deletes, 1, "cleanup still runs")
}

func TestRollbackSkipsRestoreWithoutSnapshot(t *testing.T) {
	ctx := context.Background()
	objs := &spyStore{Store: objmemory.New()}
	exec := NewExecutor(objs, urls.NewRepository(brokenRecords{recmemory.New()}, layout))

	tx := failedTx("U9")
	tx.OriginalCaptured = false
	assert.NoError(t, exec.Rollback(ctx, tx))

	tx = failedTx("U9")
	tx.OriginalURLs = avatar.URLSet{}
	assert.NoError(t, exec.Rollback(ctx, tx), "nothing to restore for a user without avatar")
}

func TestRollbackClearsNewURLsOfFirstAvatar(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.recs.Seed("U1", avatar.URLSet{Thumbnail: "t", Medium: "m", Full: "f", Legacy: "f"})

	tx := failedTx("U1")
	tx.OriginalURLs = avatar.URLSet{}
	tx.NewURLs = avatar.URLSet{Thumbnail: "t", Medium: "m", Full: "f", Legacy: "f"}
	require.NoError(t, f.exec.Rollback(ctx, tx))
	assert.Equal(t, avatar.URLSet{}, f.repo.GetCurrent(ctx, "U1"))
}

func TestCacheFallbackToClear(t *testing.T) {
	inv := &failingInvalidator{}
	clr := &countingClearer{}
	exec := NewExecutor(&spyStore{Store: objmemory.New()},
		urls.NewRepository(recmemory.New(), layout),
		WithCacheInvalidator(inv), WithCacheClearer(clr))

	require.NoError(t, exec.Rollback(context.Background(), failedTx("U2")))
	assert.Equal(t, 1, inv.calls)
	assert.Equal(t, 1, clr.calls)
}

func TestPartialLeavesURLs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	current := avatar.URLSet{Thumbnail: "new-t"}
	f.recs.Seed("U2", current)

	f.exec.Partial(ctx, failedTx("U2", "k1"))
	assert.Equal(t, [][]string{{"k1"}}, f.objs.deletes)
	assert.Equal(t, current, f.repo.GetCurrent(ctx, "U2"))
}

func TestEmergencySwallowsErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.objs.Put(ctx, "orphan", []byte("x"), "image/jpeg"))

	f.exec.Emergency(ctx, "U5", []string{"orphan"})
	assert.Equal(t, 0, f.objs.Len())

	f.objs.deleteErr = errors.New("gone")
	assert.NotPanics(t, func() { f.exec.Emergency(ctx, "U5", []string{"x"}) })
}

func TestValidateDetectsLeftovers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.objs.Put(ctx, "k1", []byte("x"), "image/jpeg"))
	f.recs.Seed("U2", avatar.URLSet{Thumbnail: "new-t"})
	f.cache.Store("U2", avatar.URLSet{Thumbnail: "new-t"})

	r := f.exec.Validate(ctx, failedTx("U2", "k1"))
	assert.Equal(t, Report{}, r)
}
