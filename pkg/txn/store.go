// Package txn keeps the in-memory bookkeeping of in-flight avatar uploads.
//
// A transaction records everything rollback needs: the user's URLs before
// the upload started, every object key written so far and the URLs the
// upload produced. Transactions are never persisted; a process restart
// forgets them.
package txn

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/avatarsync/internal/logger"
	"github.com/marmos91/avatarsync/pkg/avatar"
	"github.com/marmos91/avatarsync/pkg/metrics"
)

// DefaultStaleThreshold is how old a transaction must be before it is
// considered abandoned.
const DefaultStaleThreshold = 10 * time.Minute

// Transaction is the bookkeeping record of one upload attempt.
type Transaction struct {
	// ID uniquely identifies the attempt (for logs only)
	ID string

	UserID    string
	StartedAt time.Time

	// UploadedObjectKeys lists every object written by the attempt, in
	// write order. It only grows.
	UploadedObjectKeys []string

	// OriginalURLs is the snapshot taken before any destructive action.
	// It is only meaningful when OriginalCaptured is true.
	OriginalURLs     avatar.URLSet
	OriginalCaptured bool

	// NewURLs is set once the upload collaborator succeeded
	NewURLs avatar.URLSet

	Completed bool
}

func (t *Transaction) clone() Transaction {
	c := *t
	c.UploadedObjectKeys = slices.Clone(t.UploadedObjectKeys)
	return c
}

// Store holds at most one transaction per user.
//
// Readers always receive copies, so a Transaction obtained from Get can be
// handed to rollback while the store keeps changing.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	txns      map[string]*Transaction
	threshold time.Duration
	now       func() time.Time
	metrics   metrics.AvatarMetrics
}

// Option configures a Store.
type Option func(*Store)

// WithClock injects the time source (tests use a fake clock).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStaleThreshold overrides DefaultStaleThreshold. Non-positive values are ignored.
func WithStaleThreshold(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.threshold = d
		}
	}
}

// WithMetrics reports active transaction counts and sweeps to m.
func WithMetrics(m metrics.AvatarMetrics) Option {
	return func(s *Store) {
		if m != nil {
			s.metrics = m
		}
	}
}

// NewStore creates an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		txns:      make(map[string]*Transaction),
		threshold: DefaultStaleThreshold,
		now:       time.Now,
		metrics:   metrics.NewNoopAvatarMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Threshold returns the stale threshold in use.
func (s *Store) Threshold() time.Duration {
	return s.threshold
}

// Now returns the current time according to the store's clock.
func (s *Store) Now() time.Time {
	return s.now()
}

// Start opens a fresh transaction for userID. An existing transaction for
// the same user is discarded with a warning; its uploaded objects are no
// longer tracked.
func (s *Store) Start(userID string) Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.txns[userID]; ok {
		logger.Warn("Replacing active transaction %s for user %s (started %s ago, %d uploaded objects untracked)",
			prev.ID, userID, s.now().Sub(prev.StartedAt).Round(time.Millisecond), len(prev.UploadedObjectKeys))
	}

	t := &Transaction{
		ID:                 uuid.NewString(),
		UserID:             userID,
		StartedAt:          s.now(),
		UploadedObjectKeys: []string{},
	}
	s.txns[userID] = t
	s.metrics.SetActiveTransactions(len(s.txns))

	logger.Debug("Started transaction %s for user %s", t.ID, userID)
	return t.clone()
}

// Get returns a copy of the active transaction for userID.
func (s *Store) Get(userID string) (Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.txns[userID]
	if !ok {
		return Transaction{}, false
	}
	return t.clone(), true
}

// Has reports whether userID has an active transaction.
func (s *Store) Has(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.txns[userID]
	return ok
}

// Complete marks the transaction committed and removes it.
func (s *Store) Complete(userID string) bool {
	return s.remove(userID, "completed")
}

// Cancel removes the transaction without marking it committed.
func (s *Store) Cancel(userID string) bool {
	return s.remove(userID, "cancelled")
}

func (s *Store) remove(userID, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.txns[userID]
	if !ok {
		logger.Warn("No active transaction to mark %s for user %s", reason, userID)
		return false
	}
	if reason == "completed" {
		t.Completed = true
	}
	delete(s.txns, userID)
	s.metrics.SetActiveTransactions(len(s.txns))

	logger.Debug("Transaction %s for user %s %s after %s",
		t.ID, userID, reason, s.now().Sub(t.StartedAt).Round(time.Millisecond))
	return true
}

// AppendUploadedKeys records written object keys. Keys already recorded are
// skipped so the list stays free of duplicates.
func (s *Store) AppendUploadedKeys(userID string, keys ...string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.txns[userID]
	if !ok {
		logger.Warn("Dropping %d uploaded keys: no active transaction for user %s", len(keys), userID)
		return false
	}
	for _, k := range keys {
		if k != "" && !slices.Contains(t.UploadedObjectKeys, k) {
			t.UploadedObjectKeys = append(t.UploadedObjectKeys, k)
		}
	}
	return true
}

// SetOriginalURLs stores the pre-upload snapshot. The snapshot is immutable:
// only the first call per transaction succeeds.
func (s *Store) SetOriginalURLs(userID string, urls avatar.URLSet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.txns[userID]
	if !ok {
		logger.Warn("Cannot record original URLs: no active transaction for user %s", userID)
		return false
	}
	if t.OriginalCaptured {
		logger.Warn("Original URLs already captured for transaction %s, ignoring", t.ID)
		return false
	}
	t.OriginalURLs = urls
	t.OriginalCaptured = true
	return true
}

// SetNewURLs records the URLs produced by the upload.
func (s *Store) SetNewURLs(userID string, urls avatar.URLSet) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.txns[userID]
	if !ok {
		logger.Warn("Cannot record new URLs: no active transaction for user %s", userID)
		return false
	}
	t.NewURLs = urls
	return true
}

// SweepStale removes every transaction older than the stale threshold at
// now and returns how many were removed. A transaction whose age equals the
// threshold exactly is kept.
func (s *Store) SweepStale(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for userID, t := range s.txns {
		if now.Sub(t.StartedAt) > s.threshold {
			logger.Warn("Removing stale transaction %s for user %s (age %s, %d uploaded objects)",
				t.ID, userID, now.Sub(t.StartedAt).Round(time.Second), len(t.UploadedObjectKeys))
			delete(s.txns, userID)
			removed++
		}
	}

	if removed > 0 {
		s.metrics.RecordStaleSwept(removed)
		s.metrics.SetActiveTransactions(len(s.txns))
	}
	return removed
}

// Age returns how long the transaction for userID has been open.
func (s *Store) Age(userID string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.txns[userID]
	if !ok {
		return 0, false
	}
	return s.now().Sub(t.StartedAt), true
}

// IsStale reports whether the transaction for userID is older than the
// threshold. Missing transactions are not stale.
func (s *Store) IsStale(userID string) bool {
	age, ok := s.Age(userID)
	return ok && age > s.threshold
}

// AllActive returns copies of all transactions ordered by start time.
func (s *Store) AllActive() []Transaction {
	s.mu.Lock()
	out := make([]Transaction, 0, len(s.txns))
	for _, t := range s.txns {
		out = append(out, t.clone())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Count returns the number of active transactions.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txns)
}

// ClearAll drops every transaction and returns how many were dropped.
func (s *Store) ClearAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.txns)
	s.txns = make(map[string]*Transaction)
	s.metrics.SetActiveTransactions(0)

	if n > 0 {
		logger.Warn("Force-cleared %d active transactions", n)
	}
	return n
}
