// Package badger implements records.Store on an embedded BadgerDB.
//
// Key namespace:
//
//	Data Type      Prefix   Key Format       Value Type
//	===================================================
//	Avatar record  "u:"     u:<userID>       record (JSON)
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/marmos91/avatarsync/internal/logger"
	"github.com/marmos91/avatarsync/pkg/avatar"
	"github.com/marmos91/avatarsync/pkg/store/records"
)

const prefixUser = "u:"

func keyUser(userID string) []byte {
	return []byte(prefixUser + userID)
}

// record is the persisted form of a user's avatar URLs.
type record struct {
	Thumbnail string    `json:"thumbnail,omitempty"`
	Medium    string    `json:"medium,omitempty"`
	Full      string    `json:"full,omitempty"`
	Legacy    string    `json:"legacy,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r record) urls() avatar.URLSet {
	return avatar.URLSet{Thumbnail: r.Thumbnail, Medium: r.Medium, Full: r.Full, Legacy: r.Legacy}
}

func recordFrom(u avatar.URLSet, now time.Time) record {
	return record{Thumbnail: u.Thumbnail, Medium: u.Medium, Full: u.Full, Legacy: u.Legacy, UpdatedAt: now}
}

// Config contains configuration for the BadgerDB record store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string `mapstructure:"path"`

	// InMemory keeps the database in RAM (tests, ephemeral deployments)
	InMemory bool `mapstructure:"in_memory"`
}

// Store implements records.Store using BadgerDB.
//
// Thread Safety:
// BadgerDB transactions are serializable; concurrent updates to the same
// user are retried on conflict.
type Store struct {
	db *badger.DB
}

// New opens (or creates) a BadgerDB record store.
//
// Parameters:
//   - ctx: Context for cancellation
//   - cfg: Database location
//
// Returns:
//   - *Store: Open store; call Close when done
//   - error: Returns error if the database cannot be opened
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger record store: path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	// Records are tiny JSON documents; compression is not worth it
	opts = opts.WithLoggingLevel(badger.WARNING).WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.Path, err)
	}

	logger.Debug("Badger record store opened: path=%q in_memory=%v", cfg.Path, cfg.InMemory)
	return &Store{db: db}, nil
}

// Get returns the URLs of userID.
func (s *Store) Get(ctx context.Context, userID string) (avatar.URLSet, error) {
	if err := ctx.Err(); err != nil {
		return avatar.URLSet{}, err
	}
	if userID == "" {
		return avatar.URLSet{}, records.ErrInvalidUserID
	}

	var rec record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = readRecord(txn, userID)
		return err
	})
	if err != nil {
		return avatar.URLSet{}, err
	}
	return rec.urls(), nil
}

// Update applies patch inside a read-modify-write transaction.
func (s *Store) Update(ctx context.Context, userID string, patch records.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if userID == "" {
		return records.ErrInvalidUserID
	}

	const maxConflictRetries = 5
	for attempt := 0; ; attempt++ {
		err := s.db.Update(func(txn *badger.Txn) error {
			current := avatar.URLSet{}
			rec, err := readRecord(txn, userID)
			switch {
			case err == nil:
				current = rec.urls()
			case !errors.Is(err, records.ErrUserNotFound):
				return err
			}

			data, err := json.Marshal(recordFrom(patch.Apply(current), time.Now().UTC()))
			if err != nil {
				return fmt.Errorf("failed to encode record: %w", err)
			}
			return txn.Set(keyUser(userID), data)
		})

		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			if err := ctx.Err(); err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to update record for %s: %w", userID, err)
		}
		return nil
	}
}

// Close closes the database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}

func readRecord(txn *badger.Txn, userID string) (record, error) {
	item, err := txn.Get(keyUser(userID))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return record{}, fmt.Errorf("user %s: %w", userID, records.ErrUserNotFound)
		}
		return record{}, fmt.Errorf("failed to read record: %w", err)
	}

	var rec record
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return record{}, fmt.Errorf("failed to decode record: %w", err)
	}
	return rec, nil
}
