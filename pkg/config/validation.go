package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	im := cfg.Imaging
	if !(im.ThumbnailSize < im.MediumSize && im.MediumSize < im.FullSize) {
		return fmt.Errorf("imaging: sizes must be increasing (thumbnail %d, medium %d, full %d)",
			im.ThumbnailSize, im.MediumSize, im.FullSize)
	}

	// The section matching the selected type must be present
	switch cfg.Objects.Type {
	case "s3":
		if len(cfg.Objects.S3) == 0 {
			return fmt.Errorf("objects: type is s3 but the s3 section is empty")
		}
	case "gcs":
		if len(cfg.Objects.GCS) == 0 {
			return fmt.Errorf("objects: type is gcs but the gcs section is empty")
		}
	}

	switch cfg.Records.Type {
	case "sql":
		if len(cfg.Records.SQL) == 0 {
			return fmt.Errorf("records: type is sql but the sql section is empty")
		}
	case "firestore":
		if len(cfg.Records.Firestore) == 0 {
			return fmt.Errorf("records: type is firestore but the firestore section is empty")
		}
	}

	if cfg.Limits.UploadsPerSecond > 0 && cfg.Limits.Burst < 1 {
		return fmt.Errorf("limits: burst must be at least 1 when uploads_per_second is set")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		// Return the first validation error with context
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
