// Package gcs implements object storage on Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/marmos91/avatarsync/pkg/store/objects"
)

// Config holds the GCS store settings decoded from the objects.gcs config section.
type Config struct {
	// Bucket is the GCS bucket name
	Bucket string `mapstructure:"bucket"`

	// KeyPrefix is an optional prefix for all object names
	KeyPrefix string `mapstructure:"key_prefix"`

	// CredentialsFile is a service account JSON file. Empty uses
	// application default credentials.
	CredentialsFile string `mapstructure:"credentials_file"`

	// Endpoint overrides the API endpoint (fake-gcs-server, testing)
	Endpoint string `mapstructure:"endpoint"`

	// CacheControl is set on every uploaded object
	CacheControl string `mapstructure:"cache_control"`
}

// Store implements objects.Store using a GCS bucket.
//
// Objects are expected to be publicly readable through bucket-level IAM
// (uniform access); no per-object ACLs are written.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	client       *storage.Client
	bucket       *storage.BucketHandle
	keyPrefix    string
	cacheControl string
	ownsClient   bool
}

// NewFromConfig builds a storage client from cfg and wraps it in a Store.
// The returned store owns the client and closes it on Close.
func NewFromConfig(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("GCS object store: bucket is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	s := New(client, cfg.Bucket, cfg.KeyPrefix)
	s.ownsClient = true
	if cfg.CacheControl != "" {
		s.cacheControl = cfg.CacheControl
	}
	return s, nil
}

// New wraps an existing client. The caller keeps ownership of client.
func New(client *storage.Client, bucket, keyPrefix string) *Store {
	return &Store{
		client:       client,
		bucket:       client.Bucket(strings.TrimSpace(bucket)),
		keyPrefix:    keyPrefix,
		cacheControl: "public, max-age=31536000, immutable",
	}
}

func (s *Store) object(key string) *storage.ObjectHandle {
	return s.bucket.Object(s.keyPrefix + key)
}

// Put uploads data under key.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := objects.ValidateKey(key); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}

	w := s.object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	w.CacheControl = s.cacheControl
	w.ChunkSize = 0

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object %s: %w", key, err)
	}
	return nil
}

// Get downloads the object stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, err := s.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("object %s: %w", key, objects.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to open object %s: %w", key, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := s.object(key).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}

// DeleteBatch removes keys one by one; GCS has no multi-object delete in the
// JSON API. Missing objects are not failures.
func (s *Store) DeleteBatch(ctx context.Context, keys []string) (map[string]error, error) {
	failures := make(map[string]error)

	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			for _, rest := range keys[i:] {
				failures[rest] = err
			}
			return failures, err
		}

		if err := s.object(key).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			failures[key] = err
		}
	}

	return failures, nil
}

// Close releases the client when the store created it.
func (s *Store) Close() error {
	if s.ownsClient {
		return s.client.Close()
	}
	return nil
}
