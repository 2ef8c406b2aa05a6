package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/avatarsync/internal/logger"
	"github.com/marmos91/avatarsync/pkg/store/objects"
	objectsfs "github.com/marmos91/avatarsync/pkg/store/objects/fs"
	objectsgcs "github.com/marmos91/avatarsync/pkg/store/objects/gcs"
	objectsmemory "github.com/marmos91/avatarsync/pkg/store/objects/memory"
	objectss3 "github.com/marmos91/avatarsync/pkg/store/objects/s3"
	"github.com/marmos91/avatarsync/pkg/store/records"
	recordsbadger "github.com/marmos91/avatarsync/pkg/store/records/badger"
	recordsfirestore "github.com/marmos91/avatarsync/pkg/store/records/firestore"
	recordsmemory "github.com/marmos91/avatarsync/pkg/store/records/memory"
	"github.com/marmos91/avatarsync/pkg/store/records/sqlstore"
)

// s3YAMLConfig represents S3 configuration loaded from YAML files.
type s3YAMLConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
	CacheControl    string `mapstructure:"cache_control"`
	MaxRetries      int    `mapstructure:"max_retries"`
	SkipBucketCheck bool   `mapstructure:"skip_bucket_check"`
}

// decodeSection decodes a store-specific config map into out.
//
// Durations may be given as strings ("30s") and scalars may arrive as
// strings from environment variables.
func decodeSection(section map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(section)
}

// CreateObjectStore creates an object store based on configuration.
//
// This factory function uses the Type field to determine which store implementation
// to create, then decodes the type-specific configuration from the corresponding
// map and passes it to the store's constructor.
//
// Supported types:
//   - "filesystem": Uses pkg/store/objects/fs (local directory)
//   - "memory": Uses pkg/store/objects/memory (ephemeral)
//   - "s3": Uses pkg/store/objects/s3 (Amazon S3 or compatible storage)
//   - "gcs": Uses pkg/store/objects/gcs (Google Cloud Storage)
//
// Stores holding network clients also implement io.Closer.
//
// Parameters:
//   - ctx: Context for initialization operations
//   - cfg: Object store configuration
//
// Returns:
//   - objects.Store: Initialized object store
//   - error: Configuration or initialization error
func CreateObjectStore(ctx context.Context, cfg *ObjectsConfig) (objects.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "filesystem":
		return createFilesystemObjectStore(ctx, cfg.Filesystem)
	case "memory":
		return objectsmemory.New(), nil
	case "s3":
		return createS3ObjectStore(ctx, cfg.S3)
	case "gcs":
		return createGCSObjectStore(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unknown object store type: %q (supported: filesystem, memory, s3, gcs)", cfg.Type)
	}
}

// createFilesystemObjectStore creates a filesystem-based object store.
func createFilesystemObjectStore(ctx context.Context, options map[string]any) (objects.Store, error) {
	var storeCfg objectsfs.Config
	if err := decodeSection(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem object store config: %w", err)
	}

	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem object store: path is required")
	}

	store, err := objectsfs.New(ctx, storeCfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem object store: %w", err)
	}

	logger.Debug("Filesystem object store initialized: path=%s", storeCfg.Path)
	return store, nil
}

// createS3ObjectStore creates an S3-based object store.
func createS3ObjectStore(ctx context.Context, options map[string]any) (objects.Store, error) {
	var storeCfg s3YAMLConfig
	if err := decodeSection(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode S3 object store config: %w", err)
	}

	if storeCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 object store: bucket is required")
	}
	if storeCfg.Region == "" {
		return nil, fmt.Errorf("S3 object store: region is required")
	}

	client, err := newS3Client(ctx, storeCfg)
	if err != nil {
		return nil, err
	}

	store, err := objectss3.New(ctx, objectss3.StoreConfig{
		Client:          client,
		Bucket:          storeCfg.Bucket,
		KeyPrefix:       storeCfg.KeyPrefix,
		CacheControl:    storeCfg.CacheControl,
		SkipBucketCheck: storeCfg.SkipBucketCheck,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 object store: %w", err)
	}

	logger.Info("S3 object store initialized: bucket=%s, region=%s, prefix=%s",
		storeCfg.Bucket, storeCfg.Region, storeCfg.KeyPrefix)

	return store, nil
}

// newS3Client builds an S3 client from the decoded section.
func newS3Client(ctx context.Context, storeCfg s3YAMLConfig) (*s3.Client, error) {
	// ========================================================================
	// Step 1: Build AWS Config
	// ========================================================================

	configOptions := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(storeCfg.Region),
	}

	// Set credentials if provided, otherwise use default credential chain
	if storeCfg.AccessKeyID != "" && storeCfg.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			storeCfg.AccessKeyID,
			storeCfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	// Default to 10 attempts (AWS default is 3)
	maxRetries := storeCfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 10
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxRetries
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ========================================================================
	// Step 2: Create S3 Client
	// ========================================================================

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// Custom endpoints (MinIO, Localstack) need path-style addressing
		if storeCfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(storeCfg.Endpoint)
			o.UsePathStyle = true
		}
		if storeCfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	}), nil
}

// createGCSObjectStore creates a Google Cloud Storage object store.
func createGCSObjectStore(ctx context.Context, options map[string]any) (objects.Store, error) {
	var storeCfg objectsgcs.Config
	if err := decodeSection(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode GCS object store config: %w", err)
	}

	store, err := objectsgcs.NewFromConfig(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS object store: %w", err)
	}

	logger.Info("GCS object store initialized: bucket=%s, prefix=%s", storeCfg.Bucket, storeCfg.KeyPrefix)
	return store, nil
}

// CreateRecordStore creates a user record store based on configuration.
//
// Supported types:
//   - "memory": Uses pkg/store/records/memory (ephemeral)
//   - "badger": Uses pkg/store/records/badger (BadgerDB, persistent)
//   - "sql": Uses pkg/store/records/sqlstore (sqlite or postgres)
//   - "firestore": Uses pkg/store/records/firestore
//
// Persistent stores also implement io.Closer.
func CreateRecordStore(ctx context.Context, cfg *RecordsConfig) (records.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "memory":
		return recordsmemory.New(), nil

	case "badger":
		var storeCfg recordsbadger.Config
		if err := decodeSection(cfg.Badger, &storeCfg); err != nil {
			return nil, fmt.Errorf("failed to decode badger record store config: %w", err)
		}
		store, err := recordsbadger.New(ctx, storeCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create badger record store: %w", err)
		}
		return store, nil

	case "sql":
		var storeCfg sqlstore.Config
		if err := decodeSection(cfg.SQL, &storeCfg); err != nil {
			return nil, fmt.Errorf("failed to decode sql record store config: %w", err)
		}
		store, err := sqlstore.Open(ctx, storeCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create sql record store: %w", err)
		}
		logger.Info("SQL record store initialized: dialect=%s", storeCfg.Dialect)
		return store, nil

	case "firestore":
		var storeCfg recordsfirestore.Config
		if err := decodeSection(cfg.Firestore, &storeCfg); err != nil {
			return nil, fmt.Errorf("failed to decode firestore record store config: %w", err)
		}
		store, err := recordsfirestore.Open(ctx, storeCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore record store: %w", err)
		}
		logger.Info("Firestore record store initialized: project=%s", storeCfg.ProjectID)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown record store type: %q (supported: memory, badger, sql, firestore)", cfg.Type)
	}
}
