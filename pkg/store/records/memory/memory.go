package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/avatarsync/pkg/avatar"
	"github.com/marmos91/avatarsync/pkg/store/records"
)

// Store implements records.Store in memory.
//
// Designed for tests and development; records are lost on restart.
//
// Thread Safety: Protected by a sync.RWMutex.
type Store struct {
	mu    sync.RWMutex
	users map[string]avatar.URLSet
}

// New creates an empty in-memory record store.
func New() *Store {
	return &Store{users: make(map[string]avatar.URLSet)}
}

// Get returns the URLs of userID.
func (s *Store) Get(ctx context.Context, userID string) (avatar.URLSet, error) {
	if err := ctx.Err(); err != nil {
		return avatar.URLSet{}, err
	}
	if userID == "" {
		return avatar.URLSet{}, records.ErrInvalidUserID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	urls, ok := s.users[userID]
	if !ok {
		return avatar.URLSet{}, fmt.Errorf("user %s: %w", userID, records.ErrUserNotFound)
	}
	return urls, nil
}

// Update applies patch to userID's record, creating it if needed.
func (s *Store) Update(ctx context.Context, userID string, patch records.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if userID == "" {
		return records.ErrInvalidUserID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[userID] = patch.Apply(s.users[userID])
	return nil
}

// Seed stores urls for userID verbatim, replacing any existing record.
func (s *Store) Seed(userID string, urls avatar.URLSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = urls
}
