// Package fs implements filesystem-based object storage.
//
// Object keys map to files below a root directory. Keys are resolved with
// filepath-securejoin so a crafted key can never escape the root.
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/marmos91/avatarsync/pkg/store/objects"
)

// Config holds the filesystem store settings decoded from the
// objects.filesystem config section.
type Config struct {
	// Path is the root directory (created if missing)
	Path string `mapstructure:"path" validate:"required"`
}

// Store implements objects.Store on the local filesystem.
//
// Thread Safety:
// Writes go to a temporary file that is renamed into place, so concurrent
// readers never observe a partially written object.
type Store struct {
	basePath string
}

// New creates a filesystem store rooted at basePath.
//
// Parameters:
//   - ctx: Context for cancellation
//   - basePath: Root directory for stored objects (created with 0755)
//
// Returns:
//   - *Store: Initialized store
//   - error: Returns error if directory creation fails or context is cancelled
func New(ctx context.Context, basePath string) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if basePath == "" {
		return nil, fmt.Errorf("filesystem object store requires a path")
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Store{basePath: basePath}, nil
}

// path resolves key inside the root directory.
func (s *Store) path(key string) (string, error) {
	if err := objects.ValidateKey(key); err != nil {
		return "", fmt.Errorf("key %q: %w", key, err)
	}
	p, err := securejoin.SecureJoin(s.basePath, filepath.FromSlash(key))
	if err != nil {
		return "", fmt.Errorf("key %q: %w", key, err)
	}
	return p, nil
}

// Put writes data under key.
func (s *Store) Put(ctx context.Context, key string, data []byte, _ string) error {
	// ========================================================================
	// Step 1: Check context and resolve the target path
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return err
	}

	target, err := s.path(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	// ========================================================================
	// Step 2: Write to a temporary file and rename into place
	// ========================================================================

	tmp, err := os.CreateTemp(filepath.Dir(target), ".put-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close object: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to commit object: %w", err)
	}

	return nil
}

// Get reads the object stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p, err := s.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("object %s: %w", key, objects.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	p, err := s.path(key)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat object: %w", err)
	}
	return info.Mode().IsRegular(), nil
}

// DeleteBatch removes keys, ignoring keys that do not exist. Per-key
// failures are returned in the map; the context is checked between keys.
func (s *Store) DeleteBatch(ctx context.Context, keys []string) (map[string]error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failures := make(map[string]error)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			failures[key] = err
			continue
		}

		p, err := s.path(key)
		if err != nil {
			failures[key] = err
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			failures[key] = fmt.Errorf("failed to remove object: %w", err)
		}
	}

	return failures, nil
}
