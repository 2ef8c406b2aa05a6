// Package s3 implements object storage on Amazon S3 or S3-compatible
// services (MinIO, Localstack, Supabase storage's S3 endpoint).
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/avatarsync/pkg/store/objects"
)

// API is the subset of *s3.Client used by the store.
type API interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObjects(ctx context.Context, in *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
}

// Store implements objects.Store using S3.
//
// Thread Safety:
// Safe for concurrent use. Concurrent writes to the same key are
// last-write-wins.
type Store struct {
	client       API
	bucket       string
	keyPrefix    string
	cacheControl string
}

// StoreConfig contains configuration for the S3 object store.
type StoreConfig struct {
	// Client is the configured S3 client
	Client API

	// Bucket is the S3 bucket name
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	// Example: "public/" results in keys like "public/avatars/U1/..."
	KeyPrefix string

	// CacheControl is sent with every upload (default: "public, max-age=31536000, immutable")
	CacheControl string

	// SkipBucketCheck disables the HeadBucket probe on construction
	SkipBucketCheck bool
}

// New creates an S3-based object store. The bucket must already exist.
//
// Parameters:
//   - ctx: Context for cancellation and timeouts
//   - cfg: S3 configuration
//
// Returns:
//   - *Store: Initialized S3 object store
//   - error: Returns error if bucket access fails or context is cancelled
func New(ctx context.Context, cfg StoreConfig) (*Store, error) {
	// ========================================================================
	// Step 1: Check context and validate configuration
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = "public, max-age=31536000, immutable"
	}

	// ========================================================================
	// Step 2: Verify bucket access
	// ========================================================================

	if !cfg.SkipBucketCheck {
		_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
			Bucket: aws.String(cfg.Bucket),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &Store{
		client:       cfg.Client,
		bucket:       cfg.Bucket,
		keyPrefix:    cfg.KeyPrefix,
		cacheControl: cfg.CacheControl,
	}, nil
}

func (s *Store) objectKey(key string) string {
	return s.keyPrefix + key
}

func (s *Store) trimPrefix(key string) string {
	return strings.TrimPrefix(key, s.keyPrefix)
}

// Put uploads data under key.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := objects.ValidateKey(key); err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		CacheControl:  aws.String(s.cacheControl),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

// Get downloads the object stored under key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("object %s: %w", key, objects.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether key is present.
//
// Returns an error only for S3 failures or context cancellation, never for
// non-existent objects.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check object existence: %w", err)
	}
	return true, nil
}

// DeleteBatch removes keys in chunks of objects.MaxDeleteBatch.
//
// Returns:
//   - map[string]error: Map of failed deletions (empty = all succeeded)
//   - error: Returns error only for context cancellation
func (s *Store) DeleteBatch(ctx context.Context, keys []string) (map[string]error, error) {
	failures := make(map[string]error)

	for _, batch := range objects.Chunk(keys, objects.MaxDeleteBatch) {
		if err := ctx.Err(); err != nil {
			for _, key := range batch {
				failures[key] = err
			}
			return failures, err
		}

		ids := make([]types.ObjectIdentifier, len(batch))
		for i, key := range batch {
			ids[i] = types.ObjectIdentifier{Key: aws.String(s.objectKey(key))}
		}

		result, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: ids,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			for _, key := range batch {
				failures[key] = err
			}
			continue
		}

		for _, deleteErr := range result.Errors {
			if deleteErr.Key == nil {
				continue
			}
			msg := "unknown error"
			if deleteErr.Message != nil {
				msg = *deleteErr.Message
			}
			code := ""
			if deleteErr.Code != nil {
				code = *deleteErr.Code
			}
			if code == "NoSuchKey" {
				continue
			}
			failures[s.trimPrefix(*deleteErr.Key)] = fmt.Errorf("delete failed (%s): %s", code, msg)
		}
	}

	return failures, nil
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	return errors.As(err, &notFound) || errors.As(err, &noSuchKey)
}
