package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/marmos91/avatarsync/pkg/avatar"
	"github.com/marmos91/avatarsync/pkg/validation"
)

func TestLoad_DefaultConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
logging:
  level: info
objects:
  type: memory
records:
  type: memory
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected level normalized to INFO, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Validation.MaxSize != validation.DefaultMaxSize {
		t.Errorf("Expected default max size %d, got %d", validation.DefaultMaxSize, cfg.Validation.MaxSize)
	}
	if len(cfg.Validation.ValidTypes) != 3 {
		t.Errorf("Expected 3 default valid types, got %v", cfg.Validation.ValidTypes)
	}
	if cfg.Transactions.StaleThreshold != 10*time.Minute {
		t.Errorf("Expected stale threshold 10m, got %v", cfg.Transactions.StaleThreshold)
	}
	if cfg.Retry.MaxRetries != 3 || cfg.Retry.MaxDelay != 10*time.Second {
		t.Errorf("Unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.Imaging.ThumbnailSize != 96 || cfg.Imaging.MediumSize != 256 || cfg.Imaging.FullSize != 512 {
		t.Errorf("Unexpected imaging sizes: %+v", cfg.Imaging)
	}
	if cfg.Objects.Bucket != "avatars" {
		t.Errorf("Expected default bucket 'avatars', got %q", cfg.Objects.Bucket)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nonexistent.yaml")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Expected defaults when config file is missing, got error: %v", err)
	}
	if cfg.Objects.Type != "filesystem" {
		t.Errorf("Expected default object store 'filesystem', got %q", cfg.Objects.Type)
	}
	if cfg.Records.Type != "badger" {
		t.Errorf("Expected default record store 'badger', got %q", cfg.Records.Type)
	}
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("logging:\n  level: info\n"), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}

	t.Setenv("AVATARSYNC_LOGGING_LEVEL", "debug")
	t.Setenv("AVATARSYNC_RETRY_MAX_RETRIES", "5")
	t.Setenv("AVATARSYNC_TRANSACTIONS_STALE_THRESHOLD", "2m")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected env level DEBUG, got %q", cfg.Logging.Level)
	}
	if cfg.Retry.MaxRetries != 5 {
		t.Errorf("Expected env max retries 5, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Transactions.StaleThreshold != 2*time.Minute {
		t.Errorf("Expected env stale threshold 2m, got %v", cfg.Transactions.StaleThreshold)
	}
}

func TestLoad_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "unknown object store",
			content: "objects:\n  type: ftp\n",
			want:    "oneof",
		},
		{
			name:    "bad log format",
			content: "logging:\n  format: xml\n",
			want:    "Format",
		},
		{
			name:    "sizes out of order",
			content: "imaging:\n  thumbnail_size: 512\n  medium_size: 256\n  full_size: 96\n",
			want:    "increasing",
		},
		{
			name:    "s3 without section",
			content: "objects:\n  type: s3\n",
			want:    "s3 section",
		},
		{
			name:    "quality out of range",
			content: "imaging:\n  jpeg_quality: 101\n",
			want:    "JPEGQuality",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write config file: %v", err)
			}

			_, err := Load(configPath)
			if err == nil {
				t.Fatal("Expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestGetDefaultConfig_Valid(t *testing.T) {
	cfg := GetDefaultConfig()
	if err := Validate(cfg); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if !cfg.Cache.Enabled {
		t.Error("Expected cache enabled by default")
	}
	if cfg.Objects.Filesystem["path"] != "./data/objects" {
		t.Errorf("Expected default filesystem path, got %v", cfg.Objects.Filesystem["path"])
	}
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{
		Logging:    LoggingConfig{Level: "warn", Format: "json", Output: "stdout"},
		Validation: ValidationConfig{ValidTypes: []string{"image/gif"}, MaxSize: 1024},
		Limits:     LimitsConfig{UploadsPerSecond: 2},
	}
	ApplyDefaults(cfg)

	if cfg.Logging.Level != "WARN" || cfg.Logging.Format != "json" || cfg.Logging.Output != "stdout" {
		t.Errorf("Logging values changed: %+v", cfg.Logging)
	}
	if len(cfg.Validation.ValidTypes) != 1 || cfg.Validation.MaxSize != 1024 {
		t.Errorf("Validation values changed: %+v", cfg.Validation)
	}
	if cfg.Limits.Burst != 1 {
		t.Errorf("Expected burst defaulted to 1, got %d", cfg.Limits.Burst)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read written config: %v", err)
	}
	if !strings.HasPrefix(string(data), "# avatarsync Configuration File") {
		t.Error("Expected header comment at the top of the file")
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Written config is not valid YAML: %v", err)
	}

	if err := WriteDefault(path, false); err == nil {
		t.Error("Expected error when config exists and force is false")
	}
	if err := WriteDefault(path, true); err != nil {
		t.Errorf("Expected overwrite with force, got %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Written config should load: %v", err)
	}
	if cfg.Transactions.StaleThreshold != 10*time.Minute {
		t.Errorf("Expected stale threshold to survive the round trip, got %v", cfg.Transactions.StaleThreshold)
	}
}

func TestInitConfig_UsesXDGConfigHome(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if ConfigExists() {
		t.Fatal("Config should not exist yet")
	}
	path, err := InitConfig(false)
	if err != nil {
		t.Fatalf("InitConfig failed: %v", err)
	}
	if path != GetDefaultConfigPath() {
		t.Errorf("Expected %s, got %s", GetDefaultConfigPath(), path)
	}
	if !ConfigExists() {
		t.Error("Config should exist after InitConfig")
	}
}

func TestCreateStores_Memory(t *testing.T) {
	ctx := context.Background()

	objs, err := CreateObjectStore(ctx, &ObjectsConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("CreateObjectStore failed: %v", err)
	}
	if err := objs.Put(ctx, "a/b.jpg", []byte("x"), "image/jpeg"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	recs, err := CreateRecordStore(ctx, &RecordsConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("CreateRecordStore failed: %v", err)
	}
	got, err := recs.Get(ctx, "U1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != (avatar.URLSet{}) {
		t.Errorf("Expected empty set, got %+v", got)
	}

	if _, err := CreateObjectStore(ctx, &ObjectsConfig{Type: "ftp"}); err == nil {
		t.Error("Expected error for unknown object store type")
	}
	if _, err := CreateRecordStore(ctx, &RecordsConfig{Type: "csv"}); err == nil {
		t.Error("Expected error for unknown record store type")
	}
}

func TestCreateStores_Persistent(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	objs, err := CreateObjectStore(ctx, &ObjectsConfig{
		Type:       "filesystem",
		Filesystem: map[string]any{"path": filepath.Join(dir, "objects")},
	})
	if err != nil {
		t.Fatalf("CreateObjectStore failed: %v", err)
	}
	if err := objs.Put(ctx, "u/x.jpg", []byte("x"), "image/jpeg"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	recs, err := CreateRecordStore(ctx, &RecordsConfig{
		Type: "sql",
		SQL:  map[string]any{"dialect": "sqlite", "dsn": "file:" + filepath.Join(dir, "records.db")},
	})
	if err != nil {
		t.Fatalf("CreateRecordStore failed: %v", err)
	}
	defer func() {
		if c, ok := recs.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}()

	if _, err := CreateObjectStore(ctx, &ObjectsConfig{Type: "filesystem", Filesystem: map[string]any{}}); err == nil {
		t.Error("Expected error for filesystem store without path")
	}
}

func TestCreateManager(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Objects.Type = "memory"
	cfg.Records.Type = "badger"
	cfg.Records.Badger = map[string]any{"in_memory": true}
	cfg.Limits = LimitsConfig{UploadsPerSecond: 5, Burst: 2}

	mgr, err := CreateManager(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("CreateManager failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := mgr.UpdateAvatarURLs(ctx, "U1", avatar.URLSet{Thumbnail: "t"}); err != nil {
		t.Fatalf("UpdateAvatarURLs failed: %v", err)
	}
	if got := mgr.GetCurrentAvatarURLs(ctx, "U1"); got.Thumbnail != "t" {
		t.Errorf("Expected thumbnail 't', got %+v", got)
	}
	if err := mgr.Close(ctx); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	result := InitializeMetrics(&Config{})
	if result.Avatar == nil {
		t.Fatal("Expected no-op metrics, got nil")
	}
	if err := result.Flush(); err != nil {
		t.Errorf("Flush should be a no-op when disabled: %v", err)
	}
}

func TestSchema(t *testing.T) {
	data, err := Schema()
	if err != nil {
		t.Fatalf("Schema failed: %v", err)
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Schema is not valid JSON: %v", err)
	}
	props, ok := parsed["properties"].(map[string]any)
	if !ok {
		t.Fatal("Schema has no properties")
	}
	for _, key := range []string{"logging", "validation", "transactions", "objects", "records"} {
		if _, ok := props[key]; !ok {
			t.Errorf("Schema is missing %q", key)
		}
	}
}
