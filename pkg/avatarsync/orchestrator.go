// Package avatarsync replaces user avatars atomically.
//
// An Orchestrator drives one upload through validation, snapshot,
// processing and upload, best-effort sync verification and commit. Every
// failure after the transaction opened triggers a rollback that deletes the
// uploaded objects and restores the user's previous URLs before the original
// error is returned. Manager bundles the orchestrator with the stores and
// helpers into the public surface used by applications and the CLI.
package avatarsync

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/marmos91/avatarsync/internal/logger"
	"github.com/marmos91/avatarsync/internal/ratelimiter"
	"github.com/marmos91/avatarsync/pkg/avatar"
	"github.com/marmos91/avatarsync/pkg/metrics"
	"github.com/marmos91/avatarsync/pkg/txn"
	"github.com/marmos91/avatarsync/pkg/validation"
)

// Uploader processes a file, stores its renditions and persists the new URLs.
// *pipeline.Uploader satisfies it.
type Uploader interface {
	Upload(ctx context.Context, file avatar.File, userID string, hooks avatar.UploadHooks) (avatar.URLSet, error)
}

// URLSource snapshots current URLs and maps URLs to object keys.
// *urls.Repository satisfies it.
type URLSource interface {
	Snapshot(ctx context.Context, userID string) (avatar.URLSet, error)
	ExtractObjectKeys(set avatar.URLSet) []string
}

// Rollbacker undoes a failed transaction. *rollback.Executor satisfies it.
type Rollbacker interface {
	Rollback(ctx context.Context, tx txn.Transaction) error
}

// SyncValidator verifies a committed upload. *synccheck.Checker satisfies it.
type SyncValidator interface {
	Validate(ctx context.Context, userID string) error
}

// Timer produces the channels RetryUpload waits on between attempts.
type Timer interface {
	After(d time.Duration) <-chan time.Time
}

type realTimer struct{}

func (realTimer) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// Orchestrator runs atomic avatar uploads.
//
// Thread Safety: Safe for concurrent use. At most one upload per user runs at
// a time; concurrent uploads for different users proceed in parallel.
type Orchestrator struct {
	validator *validation.Validator
	txns      *txn.Store
	urls      URLSource
	uploader  Uploader
	rollback  Rollbacker

	sync     SyncValidator
	limiter  *ratelimiter.RateLimiter
	metrics  metrics.AvatarMetrics
	timer    Timer
	maxDelay time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSyncValidator enables the best-effort post-upload check.
func WithSyncValidator(v SyncValidator) Option {
	return func(o *Orchestrator) {
		o.sync = v
	}
}

// WithRateLimiter throttles upload attempts.
func WithRateLimiter(l *ratelimiter.RateLimiter) Option {
	return func(o *Orchestrator) {
		o.limiter = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m metrics.AvatarMetrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTimer replaces the timer used between retries.
func WithTimer(t Timer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.timer = t
		}
	}
}

// WithMaxRetryDelay caps the wait between retries (default 10s).
func WithMaxRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.maxDelay = d
		}
	}
}

// NewOrchestrator creates an orchestrator over its collaborators.
func NewOrchestrator(
	validator *validation.Validator,
	txns *txn.Store,
	source URLSource,
	uploader Uploader,
	rb Rollbacker,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		validator: validator,
		txns:      txns,
		urls:      source,
		uploader:  uploader,
		rollback:  rb,
		timer:     realTimer{},
		maxDelay:  MaxRetryDelay,
		inflight:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.metrics = metrics.OrNoop(o.metrics)
	return o
}

// Upload replaces the avatar of userID with file.
//
// Pipeline:
//  1. open a transaction and validate the file; validation errors cancel the
//     transaction and are returned unchanged
//  2. snapshot the current URLs into the transaction
//  3. delegate processing, upload and persistence to the Uploader, recording
//     every stored object key
//  4. run the sync validator, logging failures only
//  5. commit the transaction and report completion
//
// Any failure after step 1 rolls the transaction back and returns the
// triggering error; untyped errors and panics become UploadFailed.
//
// Parameters:
//   - ctx: cancellation for collaborator calls; rollback ignores cancellation
//   - file: the uploaded file
//   - userID: the user whose avatar is replaced
//   - onProgress: optional progress observer
//
// Returns:
//   - avatar.URLSet: the new URLs, equal to what the user record now holds
//   - error: a typed *avatar.Error
func (o *Orchestrator) Upload(ctx context.Context, file avatar.File, userID string, onProgress avatar.ProgressFunc) (avatar.URLSet, error) {
	start := time.Now()
	errCtx := avatar.ErrorContext{
		UserID:      userID,
		FileName:    file.Name,
		ContentType: file.ContentType,
		FileSize:    file.Size,
	}

	if err := ctx.Err(); err != nil {
		return avatar.URLSet{}, avatar.NewError(avatar.KindUploadFailed, "upload cancelled", errCtx, err)
	}

	if !o.acquire(userID) {
		o.metrics.ObserveUpload(metrics.OutcomeRejected, time.Since(start))
		return avatar.URLSet{}, avatar.NewError(avatar.KindUploadFailed,
			"upload already in progress", errCtx, nil)
	}
	defer o.release(userID)

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			o.metrics.ObserveUpload(metrics.OutcomeRejected, time.Since(start))
			return avatar.URLSet{}, avatar.NewError(avatar.KindUploadFailed,
				"rate limit wait cancelled", errCtx, err)
		}
	}

	progress := newProgressReporter(onProgress)

	// ========================================================================
	// Step 1: Open transaction and validate
	// ========================================================================

	tx := o.txns.Start(userID)
	progress.emit(avatar.StageValidation, 0, "Validating file", file.Name)

	if err := o.validator.Validate(file); err != nil {
		if e, ok := avatar.AsError(err); ok {
			e.Context.UserID = userID
		}
		o.txns.Cancel(userID)
		o.metrics.ObserveUpload(metrics.OutcomeInvalid, time.Since(start))
		logger.Info("Rejected avatar upload for %s: %v", userID, err)
		return avatar.URLSet{}, err
	}
	progress.emit(avatar.StageValidation, progressValidated, "File validated", file.Name)

	rec := newAttempt(tx)

	// ========================================================================
	// Step 2: Snapshot current URLs
	// ========================================================================

	originals, err := o.urls.Snapshot(ctx, userID)
	if err != nil {
		// Without a snapshot rollback has nothing to restore.
		logger.Warn("Could not snapshot avatar URLs for %s, rollback will not restore them: %v", userID, err)
	} else {
		rec.setOriginals(originals)
		o.txns.SetOriginalURLs(userID, originals)
	}

	// ========================================================================
	// Step 3: Process, upload and persist
	// ========================================================================

	hooks := avatar.UploadHooks{
		Progress: progress.collaborator,
		Stored: func(key string) {
			rec.addKeys(key)
			o.txns.AppendUploadedKeys(userID, key)
		},
	}

	var newURLs avatar.URLSet
	err = protect(func() error {
		var uerr error
		newURLs, uerr = o.uploader.Upload(ctx, file, userID, hooks)
		return uerr
	})
	if err != nil {
		return avatar.URLSet{}, o.fail(ctx, rec, start, avatar.Wrap(err, avatar.KindUploadFailed, "avatar upload failed", errCtx))
	}

	o.txns.SetNewURLs(userID, newURLs)
	o.txns.AppendUploadedKeys(userID, o.urls.ExtractObjectKeys(newURLs)...)

	// ========================================================================
	// Step 4: Best-effort sync check
	// ========================================================================

	progress.emit(avatar.StageSyncing, progressSyncing, "Verifying avatar", "")
	if o.sync != nil {
		if err := protect(func() error { return o.sync.Validate(ctx, userID) }); err != nil {
			logger.Warn("Avatar sync check failed for %s: %v", userID, err)
		}
	}

	// ========================================================================
	// Step 5: Commit
	// ========================================================================

	o.txns.Complete(userID)
	progress.emit(avatar.StageComplete, progressComplete, "Avatar updated", "")
	o.metrics.ObserveUpload(metrics.OutcomeSuccess, time.Since(start))

	logger.Info("Replaced avatar for %s in %s", userID, time.Since(start).Round(time.Millisecond))
	return newURLs, nil
}

// fail rolls back a failed upload, discards its transaction and returns
// cause.
//
// The stored transaction is preferred. When it was swept, cleared or
// replaced while the upload ran, the attempt's own record is rolled back
// instead and the store is left alone.
func (o *Orchestrator) fail(ctx context.Context, rec *attempt, start time.Time, cause error) error {
	own := rec.transaction()
	userID := own.UserID
	outcome := metrics.OutcomeRolledBack

	tx, ok := o.txns.Get(userID)
	owned := ok && tx.ID == own.ID
	switch {
	case !ok:
		logger.Warn("Transaction %s for %s vanished before rollback, using the upload's own record", own.ID, userID)
		tx = own
	case !owned:
		logger.Warn("Transaction %s for %s was replaced by %s before rollback, using the upload's own record", own.ID, userID, tx.ID)
		tx = own
	}

	rbCtx := context.WithoutCancel(ctx)
	if err := protect(func() error { return o.rollback.Rollback(rbCtx, tx) }); err != nil {
		outcome = metrics.OutcomeRollbackFail
		logger.Error("Rollback of transaction %s for %s failed: %v", tx.ID, userID, err)
	}
	if owned {
		o.txns.Cancel(userID)
	}

	o.metrics.ObserveUpload(outcome, time.Since(start))
	logger.Warn("Avatar upload for %s failed: %v", userID, cause)
	return cause
}

// attempt mirrors what one upload wrote, independently of the transaction
// store.
type attempt struct {
	mu sync.Mutex
	tx txn.Transaction
}

func newAttempt(tx txn.Transaction) *attempt {
	return &attempt{tx: tx}
}

func (a *attempt) setOriginals(urls avatar.URLSet) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tx.OriginalURLs = urls
	a.tx.OriginalCaptured = true
}

func (a *attempt) addKeys(keys ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, k := range keys {
		if k != "" && !slices.Contains(a.tx.UploadedObjectKeys, k) {
			a.tx.UploadedObjectKeys = append(a.tx.UploadedObjectKeys, k)
		}
	}
}

func (a *attempt) transaction() txn.Transaction {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := a.tx
	c.UploadedObjectKeys = slices.Clone(a.tx.UploadedObjectKeys)
	return c
}

func (o *Orchestrator) acquire(userID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inflight[userID]; busy {
		return false
	}
	o.inflight[userID] = struct{}{}
	return true
}

func (o *Orchestrator) release(userID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, userID)
}

// protect runs fn and converts a panic into an error.
func protect(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
