package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/marmos91/avatarsync/pkg/store/objects"
)

type object struct {
	data        []byte
	contentType string
}

// Store implements objects.Store using in-memory storage.
//
// This implementation is designed for:
//   - Testing and development
//   - Single-process deployments where avatars need not survive a restart
//
// Thread Safety:
// All operations are protected by a sync.RWMutex. Data is copied on the way
// in and out so callers can reuse their buffers.
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New creates an empty in-memory object store.
func New() *Store {
	return &Store{objects: make(map[string]object)}
}

// Put stores a copy of data under key.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := objects.ValidateKey(key); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = object{data: bytes.Clone(data), contentType: contentType}
	return nil
}

// Get returns a copy of the object stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, objects.ErrObjectNotFound)
	}
	return bytes.Clone(obj.data), nil
}

// ContentType returns the content type recorded for key.
func (s *Store) ContentType(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	return obj.contentType, ok
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.objects[key]
	return ok, nil
}

// DeleteBatch removes keys. Missing keys are ignored.
func (s *Store) DeleteBatch(ctx context.Context, keys []string) (map[string]error, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		delete(s.objects, key)
	}
	return map[string]error{}, nil
}

// Keys returns every stored key in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
