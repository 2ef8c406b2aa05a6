package config

import (
	"strings"
	"time"

	"github.com/marmos91/avatarsync/pkg/avatarsync"
	"github.com/marmos91/avatarsync/pkg/imaging"
	"github.com/marmos91/avatarsync/pkg/pipeline"
	"github.com/marmos91/avatarsync/pkg/txn"
	"github.com/marmos91/avatarsync/pkg/urls"
	"github.com/marmos91/avatarsync/pkg/validation"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Store-specific defaults are handled by store implementations
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyValidationDefaults(&cfg.Validation)
	applyTransactionsDefaults(&cfg.Transactions)
	applyRetryDefaults(&cfg.Retry)
	applyImagingDefaults(&cfg.Imaging)
	applyObjectsDefaults(&cfg.Objects)
	applyRecordsDefaults(&cfg.Records)
	applyCacheDefaults(&cfg.Cache)
	applyLimitsDefaults(&cfg.Limits)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyValidationDefaults(cfg *ValidationConfig) {
	if len(cfg.ValidTypes) == 0 {
		cfg.ValidTypes = validation.DefaultValidTypes()
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = validation.DefaultMaxSize
	}
}

func applyTransactionsDefaults(cfg *TransactionsConfig) {
	if cfg.StaleThreshold == 0 {
		cfg.StaleThreshold = txn.DefaultStaleThreshold
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Minute
	}
}

func applyRetryDefaults(cfg *RetryConfig) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = avatarsync.DefaultMaxRetries
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = avatarsync.MaxRetryDelay
	}
}

func applyImagingDefaults(cfg *ImagingConfig) {
	d := imaging.DefaultConfig()
	if cfg.ThumbnailSize == 0 {
		cfg.ThumbnailSize = d.ThumbnailSize
	}
	if cfg.MediumSize == 0 {
		cfg.MediumSize = d.MediumSize
	}
	if cfg.FullSize == 0 {
		cfg.FullSize = d.FullSize
	}
	if cfg.JPEGQuality == 0 {
		cfg.JPEGQuality = d.JPEGQuality
	}
	if cfg.MaxPixels == 0 {
		cfg.MaxPixels = d.MaxPixels
	}
	if cfg.UploadConcurrency == 0 {
		cfg.UploadConcurrency = pipeline.DefaultConcurrency
	}
}

// applyObjectsDefaults sets object store defaults.
func applyObjectsDefaults(cfg *ObjectsConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}
	if cfg.Bucket == "" {
		cfg.Bucket = "avatars"
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = "http://localhost:8080"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "avatars"
	}

	// Initialize maps if nil
	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
	if cfg.GCS == nil {
		cfg.GCS = make(map[string]any)
	}

	if cfg.Type == "filesystem" {
		if _, ok := cfg.Filesystem["path"]; !ok {
			cfg.Filesystem["path"] = "./data/objects"
		}
	}
}

// applyRecordsDefaults sets record store defaults.
func applyRecordsDefaults(cfg *RecordsConfig) {
	if cfg.Type == "" {
		cfg.Type = "badger"
	}

	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.SQL == nil {
		cfg.SQL = make(map[string]any)
	}
	if cfg.Firestore == nil {
		cfg.Firestore = make(map[string]any)
	}

	if cfg.Type == "badger" {
		_, hasPath := cfg.Badger["path"]
		_, inMemory := cfg.Badger["in_memory"]
		if !hasPath && !inMemory {
			cfg.Badger["path"] = "./data/records"
		}
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.Size == 0 {
		cfg.Size = urls.DefaultCacheSize
	}
	if cfg.TTL == 0 {
		cfg.TTL = urls.DefaultCacheTTL
	}
}

func applyLimitsDefaults(cfg *LimitsConfig) {
	if cfg.UploadsPerSecond > 0 && cfg.Burst == 0 {
		cfg.Burst = 1
	}
}

// GetDefaultConfig returns a Config struct with all default values applied.
//
// This is useful for:
//   - Generating sample configuration files
//   - Testing
//   - Documentation
func GetDefaultConfig() *Config {
	cfg := &Config{
		Cache: CacheConfig{Enabled: true},
	}
	ApplyDefaults(cfg)
	return cfg
}
