package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configHeader = `# avatarsync Configuration File
#
# Every value below is a default. Environment variables override file values:
# AVATARSYNC_<SECTION>_<KEY>, e.g. AVATARSYNC_LOGGING_LEVEL=DEBUG.
#
# objects.type:  filesystem | memory | s3 | gcs
# records.type:  memory | badger | sql | firestore

`

// InitConfig writes the default configuration to the default location.
//
// Parameters:
//   - force: Overwrite an existing file
//
// Returns:
//   - string: Path of the written file
//   - error: If the file exists (and force is false) or cannot be written
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := WriteDefault(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// WriteDefault writes the default configuration as YAML to path, creating
// parent directories as needed.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := renderDefault()
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func renderDefault() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(configHeader)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(GetDefaultConfig()); err != nil {
		return nil, fmt.Errorf("failed to encode default config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode default config: %w", err)
	}
	return buf.Bytes(), nil
}
