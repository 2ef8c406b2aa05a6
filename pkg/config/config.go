package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete avatarsync configuration.
//
// This structure captures all configurable aspects of avatarsync including:
//   - Logging configuration
//   - Upload validation rules
//   - Transaction bookkeeping and retry policy
//   - Image rendition settings
//   - Object store and record store selection (store-specific sections)
//   - URL cache, rate limits and metrics
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (AVATARSYNC_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each store implementation defines its own configuration type. The Config
// struct carries a map per implementation (e.g. objects.s3, records.badger)
// and only the section matching the selected type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Validation controls which uploads are accepted
	Validation ValidationConfig `mapstructure:"validation" yaml:"validation"`

	// Transactions controls in-memory transaction bookkeeping
	Transactions TransactionsConfig `mapstructure:"transactions" yaml:"transactions"`

	// Retry controls automatic upload retries
	Retry RetryConfig `mapstructure:"retry" yaml:"retry"`

	// Imaging controls rendition sizes and encoding
	Imaging ImagingConfig `mapstructure:"imaging" yaml:"imaging"`

	// Objects selects and configures the object store holding images
	Objects ObjectsConfig `mapstructure:"objects" yaml:"objects"`

	// Records selects and configures the user record store
	Records RecordsConfig `mapstructure:"records" yaml:"records"`

	// Cache configures the URL read cache
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`

	// Limits configures upload throttling
	Limits LimitsConfig `mapstructure:"limits" yaml:"limits"`

	// Metrics configures Prometheus metrics collection
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// ValidationConfig contains upload validation rules.
type ValidationConfig struct {
	// ValidTypes lists the accepted declared content types
	ValidTypes []string `mapstructure:"valid_types" yaml:"valid_types" validate:"required,min=1,dive,required"`

	// MaxSize is the largest accepted upload in bytes
	MaxSize int64 `mapstructure:"max_size" yaml:"max_size" validate:"gt=0"`
}

// TransactionsConfig controls transaction staleness and sweeping.
type TransactionsConfig struct {
	// StaleThreshold is the age after which a transaction is abandoned
	StaleThreshold time.Duration `mapstructure:"stale_threshold" yaml:"stale_threshold" validate:"gt=0"`

	// SweepEnabled runs the background stale transaction sweeper
	SweepEnabled bool `mapstructure:"sweep_enabled" yaml:"sweep_enabled"`

	// SweepInterval is how often the sweeper runs
	SweepInterval time.Duration `mapstructure:"sweep_interval" yaml:"sweep_interval" validate:"gt=0"`
}

// RetryConfig controls automatic retries.
type RetryConfig struct {
	// MaxRetries is the default retry budget of the upload command
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=0,lte=10"`

	// MaxDelay caps the backoff between attempts
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay" validate:"gt=0"`
}

// ImagingConfig controls rendition generation.
type ImagingConfig struct {
	ThumbnailSize int `mapstructure:"thumbnail_size" yaml:"thumbnail_size" validate:"gt=0"`
	MediumSize    int `mapstructure:"medium_size" yaml:"medium_size" validate:"gt=0"`
	FullSize      int `mapstructure:"full_size" yaml:"full_size" validate:"gt=0"`

	// JPEGQuality is the encoder quality (1-100)
	JPEGQuality int `mapstructure:"jpeg_quality" yaml:"jpeg_quality" validate:"min=1,max=100"`

	// MaxPixels bounds width*height of accepted images
	MaxPixels int `mapstructure:"max_pixels" yaml:"max_pixels" validate:"gt=0"`

	// UploadConcurrency bounds parallel rendition uploads
	UploadConcurrency int `mapstructure:"upload_concurrency" yaml:"upload_concurrency" validate:"gt=0"`
}

// ObjectsConfig specifies the object store.
//
// The Type field determines which store implementation is used.
// Only the corresponding type-specific configuration section is used.
type ObjectsConfig struct {
	// Type specifies which object store implementation to use
	// Valid values: filesystem, memory, s3, gcs
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=filesystem memory s3 gcs"`

	// Bucket is the public bucket name used in avatar URLs
	Bucket string `mapstructure:"bucket" yaml:"bucket" validate:"required"`

	// PublicBaseURL is the origin avatar URLs are served from
	PublicBaseURL string `mapstructure:"public_base_url" yaml:"public_base_url" validate:"required,url"`

	// KeyPrefix is prepended to every object key
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`

	// Filesystem contains filesystem-specific configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem,omitempty"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty"`

	// GCS contains Google Cloud Storage configuration
	// Only used when Type = "gcs"
	GCS map[string]any `mapstructure:"gcs" yaml:"gcs,omitempty"`
}

// RecordsConfig specifies the user record store.
type RecordsConfig struct {
	// Type specifies which record store implementation to use
	// Valid values: memory, badger, sql, firestore
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory badger sql firestore"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty"`

	// SQL contains database/sql configuration (sqlite or postgres)
	// Only used when Type = "sql"
	SQL map[string]any `mapstructure:"sql" yaml:"sql,omitempty"`

	// Firestore contains Firestore configuration
	// Only used when Type = "firestore"
	Firestore map[string]any `mapstructure:"firestore" yaml:"firestore,omitempty"`
}

// CacheConfig configures the URL read-through cache.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Size    int           `mapstructure:"size" yaml:"size" validate:"gte=0"`
	TTL     time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"gte=0"`
}

// LimitsConfig configures upload throttling.
type LimitsConfig struct {
	// UploadsPerSecond is the sustained attempt rate (0 = unlimited)
	UploadsPerSecond float64 `mapstructure:"uploads_per_second" yaml:"uploads_per_second" validate:"gte=0"`

	// Burst is the number of attempts admitted back to back
	Burst int `mapstructure:"burst" yaml:"burst" validate:"gte=0"`
}

// MetricsConfig configures metrics collection.
type MetricsConfig struct {
	// Enabled turns on Prometheus metrics
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// TextfilePath, when set, receives the metrics in text exposition
	// format after each command (node_exporter textfile collector)
	TextfilePath string `mapstructure:"textfile_path" yaml:"textfile_path"`
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (AVATARSYNC_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the AVATARSYNC_ prefix and underscores
	// Example: AVATARSYNC_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("AVATARSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only applies to keys viper knows about.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/avatarsync/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// envKeys are the scalar keys that may be set purely from the environment.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"validation.max_size",
	"transactions.stale_threshold",
	"transactions.sweep_enabled",
	"transactions.sweep_interval",
	"retry.max_retries",
	"retry.max_delay",
	"imaging.jpeg_quality",
	"objects.type",
	"objects.bucket",
	"objects.public_base_url",
	"objects.key_prefix",
	"records.type",
	"cache.enabled",
	"limits.uploads_per_second",
	"limits.burst",
	"metrics.enabled",
	"metrics.textfile_path",
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			// Missing config file is acceptable - use defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "avatarsync")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "avatarsync")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
