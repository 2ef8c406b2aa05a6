package config

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Schema returns the JSON schema of the configuration file, for editor
// completion and validation of config.yaml.
func Schema() ([]byte, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true, // Inline all definitions for simplicity
		FieldNameTag:              "yaml",
	}

	schema := reflector.Reflect(&Config{})
	schema.Title = "avatarsync Configuration"
	schema.Description = "Configuration schema for avatarsync"
	schema.Version = "1.0.0"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return data, nil
}
