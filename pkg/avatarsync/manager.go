package avatarsync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/marmos91/avatarsync/internal/logger"
	"github.com/marmos91/avatarsync/internal/ratelimiter"
	"github.com/marmos91/avatarsync/pkg/avatar"
	"github.com/marmos91/avatarsync/pkg/imaging"
	"github.com/marmos91/avatarsync/pkg/metrics"
	"github.com/marmos91/avatarsync/pkg/pipeline"
	"github.com/marmos91/avatarsync/pkg/rollback"
	"github.com/marmos91/avatarsync/pkg/store/objects"
	"github.com/marmos91/avatarsync/pkg/store/records"
	"github.com/marmos91/avatarsync/pkg/synccheck"
	"github.com/marmos91/avatarsync/pkg/txn"
	"github.com/marmos91/avatarsync/pkg/urls"
	"github.com/marmos91/avatarsync/pkg/validation"
)

// Components are the collaborators and settings a Manager is built from.
//
// Objects and Records are required; everything else has a default.
type Components struct {
	Objects objects.Store
	Records records.Store
	Layout  objects.URLLayout

	Validation validation.Config
	Imaging    imaging.Config
	Pipeline   pipeline.Config

	// StaleThreshold is the transaction staleness limit (default 10m)
	StaleThreshold time.Duration
	Sweeper        txn.SweeperConfig
	Clock          func() time.Time

	// Cache enables the URL cache; nil disables it
	Cache *urls.Cache

	// Limiter throttles upload attempts; nil disables throttling
	Limiter *ratelimiter.RateLimiter

	// MaxRetryDelay caps retry backoff (default 10s)
	MaxRetryDelay time.Duration
	Timer         Timer

	Metrics metrics.AvatarMetrics

	// Uploader replaces the built-in processing pipeline
	Uploader Uploader

	// DisableSyncCheck skips the post-upload object check
	DisableSyncCheck bool

	// Closers are closed by Manager.Close, in order
	Closers []io.Closer
}

// Manager is the public surface of avatarsync: uploads, validation,
// transaction introspection, URL helpers and manual rollback.
//
// Thread Safety: Safe for concurrent use.
type Manager struct {
	validator    *validation.Validator
	txns         *txn.Store
	sweeper      *txn.Sweeper
	repo         *urls.Repository
	rollback     *rollback.Executor
	orchestrator *Orchestrator
	closers      []io.Closer
}

// NewManager wires a Manager from c.
func NewManager(c Components) (*Manager, error) {
	if c.Objects == nil {
		return nil, errors.New("object store is required")
	}
	if c.Records == nil {
		return nil, errors.New("record store is required")
	}

	validator, err := validation.New(c.Validation)
	if err != nil {
		return nil, fmt.Errorf("invalid validation config: %w", err)
	}

	m := metrics.OrNoop(c.Metrics)

	txnOpts := []txn.Option{txn.WithMetrics(m)}
	if c.StaleThreshold > 0 {
		txnOpts = append(txnOpts, txn.WithStaleThreshold(c.StaleThreshold))
	}
	if c.Clock != nil {
		txnOpts = append(txnOpts, txn.WithClock(c.Clock))
	}
	txns := txn.NewStore(txnOpts...)

	var repoOpts []urls.Option
	if c.Cache != nil {
		repoOpts = append(repoOpts, urls.WithCache(c.Cache))
	}
	repo := urls.NewRepository(c.Records, c.Layout, repoOpts...)

	rb := rollback.NewExecutor(c.Objects, repo, rollback.WithCache(c.Cache), rollback.WithMetrics(m))

	uploader := c.Uploader
	if uploader == nil {
		uploader = pipeline.NewUploader(imaging.NewProcessor(c.Imaging), c.Objects, c.Layout, repo, c.Pipeline)
	}

	opts := []Option{
		WithMetrics(m),
		WithMaxRetryDelay(c.MaxRetryDelay),
		WithTimer(c.Timer),
	}
	if c.Limiter != nil {
		opts = append(opts, WithRateLimiter(c.Limiter))
	}
	if !c.DisableSyncCheck {
		opts = append(opts, WithSyncValidator(synccheck.New(c.Records, c.Objects, c.Layout)))
	}

	return &Manager{
		validator:    validator,
		txns:         txns,
		sweeper:      txn.NewSweeper(txns, c.Sweeper),
		repo:         repo,
		rollback:     rb,
		orchestrator: NewOrchestrator(validator, txns, repo, uploader, rb, opts...),
		closers:      c.Closers,
	}, nil
}

// Start launches background workers.
func (m *Manager) Start() {
	m.sweeper.Start()
}

// Close stops background workers and closes the configured stores.
func (m *Manager) Close(ctx context.Context) error {
	var errs []error
	if err := m.sweeper.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop sweeper: %w", err))
	}
	if n := m.txns.Count(); n > 0 {
		logger.Warn("Closing with %d active avatar transactions", n)
	}
	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ============================================================================
// Uploads
// ============================================================================

// UploadAvatarAtomic replaces the avatar of userID. See Orchestrator.Upload.
func (m *Manager) UploadAvatarAtomic(ctx context.Context, file avatar.File, userID string, onProgress avatar.ProgressFunc) (avatar.URLSet, error) {
	return m.orchestrator.Upload(ctx, file, userID, onProgress)
}

// RetryUploadAtomic is UploadAvatarAtomic with automatic retries. See
// Orchestrator.RetryUpload.
func (m *Manager) RetryUploadAtomic(ctx context.Context, file avatar.File, userID string, maxRetries int, onProgress avatar.ProgressFunc) (avatar.URLSet, error) {
	return m.orchestrator.RetryUpload(ctx, file, userID, maxRetries, onProgress)
}

// ============================================================================
// Validation
// ============================================================================

// ValidateFile checks file against the current validation config.
func (m *Manager) ValidateFile(file avatar.File) error {
	return m.validator.Validate(file)
}

// GetFileValidationSummary reports errors and warnings for file.
func (m *Manager) GetFileValidationSummary(file avatar.File) validation.Summary {
	return m.validator.Summarize(file)
}

// UpdateValidationConfig merges patch into the validation config.
func (m *Manager) UpdateValidationConfig(patch validation.ConfigPatch) error {
	return m.validator.Update(patch)
}

// ValidationConfig returns the current validation config.
func (m *Manager) ValidationConfig() validation.Config {
	return m.validator.Config()
}

// ============================================================================
// Transactions
// ============================================================================

// StartTransaction opens a transaction for userID, replacing any open one.
func (m *Manager) StartTransaction(userID string) txn.Transaction {
	return m.txns.Start(userID)
}

// GetActiveTransaction returns a copy of the user's open transaction.
func (m *Manager) GetActiveTransaction(userID string) (txn.Transaction, bool) {
	return m.txns.Get(userID)
}

// HasActiveTransaction reports whether userID has an open transaction.
func (m *Manager) HasActiveTransaction(userID string) bool {
	return m.txns.Has(userID)
}

// GetAllActiveTransactions returns copies of all open transactions, oldest
// first.
func (m *Manager) GetAllActiveTransactions() []txn.Transaction {
	return m.txns.AllActive()
}

// GetActiveTransactionCount returns the number of open transactions.
func (m *Manager) GetActiveTransactionCount() int {
	return m.txns.Count()
}

// GetTransactionAge returns how long the user's transaction has been open.
func (m *Manager) GetTransactionAge(userID string) (time.Duration, bool) {
	return m.txns.Age(userID)
}

// IsTransactionStale reports whether the user's transaction is older than
// the stale threshold.
func (m *Manager) IsTransactionStale(userID string) bool {
	return m.txns.IsStale(userID)
}

// CleanupStaleTransactions removes stale transactions and returns how many
// were removed.
func (m *Manager) CleanupStaleTransactions() int {
	return m.sweeper.RunNow()
}

// ForceCleanupAllTransactions drops every transaction and returns how many
// were dropped.
func (m *Manager) ForceCleanupAllTransactions() int {
	return m.txns.ClearAll()
}

// ============================================================================
// URLs
// ============================================================================

// GetCurrentAvatarURLs returns the user's URLs, or an empty set when they
// cannot be read.
func (m *Manager) GetCurrentAvatarURLs(ctx context.Context, userID string) avatar.URLSet {
	return m.repo.GetCurrent(ctx, userID)
}

// UpdateAvatarURLs writes the non-empty fields of set.
func (m *Manager) UpdateAvatarURLs(ctx context.Context, userID string, set avatar.URLSet) error {
	return m.repo.Update(ctx, userID, set)
}

// GetPreferredAvatarURL returns the URL for variant, falling back to the
// closest available variant.
func (m *Manager) GetPreferredAvatarURL(set avatar.URLSet, variant avatar.Variant) (string, bool) {
	return urls.PreferredURL(set, variant)
}

// ValidateAvatarURLs reports whether all four variants are set.
func (m *Manager) ValidateAvatarURLs(set avatar.URLSet) bool {
	return urls.IsComplete(set)
}

// CompareAvatarURLs reports which variants differ between a and b.
func (m *Manager) CompareAvatarURLs(a, b avatar.URLSet) urls.Comparison {
	return urls.Diff(a, b)
}

// ============================================================================
// Rollback
// ============================================================================

// RollbackTransaction fully rolls back tx. A RollbackFailed error is
// returned as is.
func (m *Manager) RollbackTransaction(ctx context.Context, tx txn.Transaction) error {
	return m.rollback.Rollback(ctx, tx)
}

// PartialRollback deletes the objects of tx and invalidates the cache,
// leaving the user's URLs untouched.
func (m *Manager) PartialRollback(ctx context.Context, tx txn.Transaction) {
	m.rollback.Partial(ctx, tx)
}

// EmergencyRollback deletes keys for userID, ignoring every failure.
func (m *Manager) EmergencyRollback(ctx context.Context, userID string, keys []string) {
	m.rollback.Emergency(ctx, userID, keys)
}

// ValidateRollback reports whether tx was fully rolled back.
func (m *Manager) ValidateRollback(ctx context.Context, tx txn.Transaction) rollback.Report {
	return m.rollback.Validate(ctx, tx)
}
