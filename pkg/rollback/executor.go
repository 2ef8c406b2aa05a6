// Package rollback undoes the effects of a failed avatar upload: it deletes
// the objects the upload wrote, restores the user's original URLs and drops
// cached URL entries.
package rollback

import (
	"context"

	"github.com/google/uuid"

	"github.com/marmos91/avatarsync/internal/logger"
	"github.com/marmos91/avatarsync/pkg/avatar"
	"github.com/marmos91/avatarsync/pkg/metrics"
	"github.com/marmos91/avatarsync/pkg/store/objects"
	"github.com/marmos91/avatarsync/pkg/txn"
	"github.com/marmos91/avatarsync/pkg/urls"
)

// URLRestorer reads and overwrites a user's avatar URLs.
// *urls.Repository satisfies it.
type URLRestorer interface {
	Snapshot(ctx context.Context, userID string) (avatar.URLSet, error)
	Restore(ctx context.Context, userID string, set avatar.URLSet) error
}

// CacheInvalidator drops the cached URLs of one user.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID string, reason urls.InvalidationReason) error
}

// CacheClearer drops every cached entry. It is the fallback when targeted
// invalidation is unavailable or fails.
type CacheClearer interface {
	ClearCache()
}

// cacheInspector is implemented by caches that can report membership.
type cacheInspector interface {
	Contains(userID string) bool
}

// Report is the result of Validate.
type Report struct {
	FilesCleanedUp bool
	URLsRestored   bool
	CacheCleared   bool
}

// Executor runs compensating actions for failed transactions.
//
// Thread Safety: Safe for concurrent use.
type Executor struct {
	objects     objects.Store
	urls        URLRestorer
	invalidator CacheInvalidator
	clearer     CacheClearer
	metrics     metrics.AvatarMetrics
}

// Option configures an Executor.
type Option func(*Executor)

// WithCacheInvalidator sets the targeted cache invalidation collaborator.
func WithCacheInvalidator(inv CacheInvalidator) Option {
	return func(e *Executor) {
		e.invalidator = inv
	}
}

// WithCacheClearer sets the clear-all fallback.
func WithCacheClearer(c CacheClearer) Option {
	return func(e *Executor) {
		e.clearer = c
	}
}

// WithCache wires c as both invalidator and fallback clearer.
func WithCache(c *urls.Cache) Option {
	return func(e *Executor) {
		if c == nil {
			return
		}
		e.invalidator = c
		e.clearer = c
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.AvatarMetrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// NewExecutor creates an executor deleting from store and restoring through
// restorer.
func NewExecutor(store objects.Store, restorer URLRestorer, opts ...Option) *Executor {
	e := &Executor{objects: store, urls: restorer}
	for _, opt := range opts {
		opt(e)
	}
	e.metrics = metrics.OrNoop(e.metrics)
	return e
}

// Rollback undoes tx.
//
// The steps run in order and each is attempted regardless of the previous
// one:
//  1. delete tx.UploadedObjectKeys; failures are logged only
//  2. restore the original URLs when a snapshot was captured and there is
//     something to restore; failure returns RollbackFailed
//  3. invalidate the user's cache entry, falling back to clearing the cache;
//     failures are swallowed
func (e *Executor) Rollback(ctx context.Context, tx txn.Transaction) error {
	logger.Info("Rolling back transaction %s for %s (%d objects)",
		tx.ID, tx.UserID, len(tx.UploadedObjectKeys))

	e.cleanupFiles(ctx, tx)

	var restoreErr error
	if needsRestore(tx) {
		if err := e.urls.Restore(ctx, tx.UserID, tx.OriginalURLs); err != nil {
			logger.Error("Failed to restore avatar URLs for %s: %v", tx.UserID, err)
			restoreErr = avatar.NewError(avatar.KindRollbackFailed,
				"failed to restore original avatar URLs",
				avatar.ErrorContext{
					UserID:  tx.UserID,
					Details: map[string]any{"transaction_id": tx.ID},
				}, err)
		}
	}

	e.invalidateCache(ctx, tx.UserID)

	if restoreErr != nil {
		e.metrics.RecordRollback("failed")
		return restoreErr
	}
	e.metrics.RecordRollback("ok")
	logger.Info("Rolled back transaction %s for %s", tx.ID, tx.UserID)
	return nil
}

// Partial deletes the uploaded objects and invalidates the cache without
// touching the user's URLs.
func (e *Executor) Partial(ctx context.Context, tx txn.Transaction) {
	e.cleanupFiles(ctx, tx)
	e.invalidateCache(ctx, tx.UserID)
}

// Emergency deletes keys on behalf of userID without any transaction
// bookkeeping. All failures are logged and swallowed.
func (e *Executor) Emergency(ctx context.Context, userID string, keys []string) {
	tx := txn.Transaction{
		ID:                 "emergency-" + uuid.NewString(),
		UserID:             userID,
		UploadedObjectKeys: keys,
	}
	logger.Warn("Emergency cleanup of %d objects for %s", len(keys), userID)
	e.cleanupFiles(ctx, tx)
}

// Validate inspects the system after a rollback of tx.
//
// FilesCleanedUp is true when none of the uploaded keys exist. URLsRestored
// is true when the user's current URLs equal the captured originals.
// CacheCleared is true when the cache holds no entry for the user, or when
// no inspectable cache is wired.
func (e *Executor) Validate(ctx context.Context, tx txn.Transaction) Report {
	r := Report{FilesCleanedUp: true, URLsRestored: true, CacheCleared: true}

	for _, key := range tx.UploadedObjectKeys {
		ok, err := e.objects.Exists(ctx, key)
		if err != nil || ok {
			r.FilesCleanedUp = false
			break
		}
	}

	// Inspect the cache before reading URLs: a read-through read refills it.
	for _, c := range []any{e.invalidator, e.clearer} {
		if in, ok := c.(cacheInspector); ok && in.Contains(tx.UserID) {
			r.CacheCleared = false
		}
	}

	current, err := e.urls.Snapshot(ctx, tx.UserID)
	if err != nil {
		logger.Warn("Rollback validation could not read URLs for %s: %v", tx.UserID, err)
		r.URLsRestored = false
	} else {
		r.URLsRestored = urls.Diff(current, tx.OriginalURLs).Identical
	}
	return r
}

func needsRestore(tx txn.Transaction) bool {
	return tx.OriginalCaptured && (tx.OriginalURLs.HasAny() || tx.NewURLs.HasAny())
}

func (e *Executor) cleanupFiles(ctx context.Context, tx txn.Transaction) {
	if len(tx.UploadedObjectKeys) == 0 {
		return
	}

	failures, err := e.objects.DeleteBatch(ctx, tx.UploadedObjectKeys)
	if err != nil {
		logger.Warn("Failed to delete %d objects for %s: %v",
			len(tx.UploadedObjectKeys), tx.UserID, err)
		e.metrics.RecordCleanupFailures(len(tx.UploadedObjectKeys))
		return
	}

	for key, ferr := range failures {
		logger.Warn("Failed to delete object %s for %s: %v", key, tx.UserID, ferr)
	}
	if len(failures) > 0 {
		e.metrics.RecordCleanupFailures(len(failures))
	}
	logger.Debug("Deleted %d/%d objects for %s",
		len(tx.UploadedObjectKeys)-len(failures), len(tx.UploadedObjectKeys), tx.UserID)
}

func (e *Executor) invalidateCache(ctx context.Context, userID string) {
	if e.invalidator != nil {
		err := e.invalidator.Invalidate(ctx, userID, urls.ReasonAvatarRollback)
		if err == nil {
			return
		}
		logger.Debug("Cache invalidation for %s failed, clearing cache: %v", userID, err)
	}
	if e.clearer != nil {
		e.clearer.ClearCache()
	}
}
