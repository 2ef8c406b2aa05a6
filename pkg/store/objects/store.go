// Package objects defines the object storage collaborator that holds the
// rendered avatar images, and the public URL convention that maps object
// keys to the URLs saved on user records.
//
// Implementations live in sub-packages: memory, fs, s3 and gcs.
package objects

import (
	"context"
	"errors"
)

var (
	// ErrObjectNotFound indicates the requested key does not exist
	ErrObjectNotFound = errors.New("object not found")

	// ErrInvalidKey indicates an empty or malformed object key
	ErrInvalidKey = errors.New("invalid object key")
)

// MaxDeleteBatch is the largest number of keys sent in one delete request.
// S3 supports up to 1000 objects per DeleteObjects call.
const MaxDeleteBatch = 1000

// Store is a flat key/value object store.
//
// Keys are slash-separated paths relative to the bucket. All methods must be
// safe for concurrent use.
type Store interface {
	// Put writes data under key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte, contentType string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// DeleteBatch removes keys. Deleting a missing key is not an error.
	//
	// Returns:
	//   - map[string]error: per-key failures (empty when every key was removed)
	//   - error: a failure that prevented the batch from running at all
	DeleteBatch(ctx context.Context, keys []string) (map[string]error, error)
}

// Reader is implemented by stores that can return object contents.
type Reader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// ValidateKey rejects keys that cannot be stored safely.
func ValidateKey(key string) error {
	if key == "" || key[0] == '/' {
		return ErrInvalidKey
	}
	return nil
}

// Chunk splits keys into batches of at most size keys.
func Chunk(keys []string, size int) [][]string {
	if size <= 0 {
		size = MaxDeleteBatch
	}
	var batches [][]string
	for i := 0; i < len(keys); i += size {
		end := min(i+size, len(keys))
		batches = append(batches, keys[i:end])
	}
	return batches
}
