// Package validation checks upload candidates against a configurable set of
// accepted content types and a maximum size.
package validation

import (
	"fmt"
	"mime"
	"slices"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"github.com/marmos91/avatarsync/pkg/avatar"
)

const (
	// DefaultMaxSize is the default upload limit (10 MiB)
	DefaultMaxSize int64 = 10 * 1024 * 1024

	// WarnRatio is the fraction of MaxSize above which Summarize warns
	WarnRatio = 0.8
)

// DefaultValidTypes returns the content types accepted by default.
func DefaultValidTypes() []string {
	return []string{"image/jpeg", "image/png", "image/webp"}
}

// Config holds the validation rules.
type Config struct {
	// ValidTypes lists accepted MIME types (exact match on the declared type)
	ValidTypes []string `validate:"required,min=1,dive,required"`

	// MaxSize is the largest accepted declared size in bytes
	MaxSize int64 `validate:"gt=0"`
}

// ConfigPatch is a partial Config. Nil fields leave the current value alone.
type ConfigPatch struct {
	ValidTypes []string
	MaxSize    *int64
}

// Summary is the non-failing validation report used for previews.
type Summary struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// Validator validates files against a Config that can be changed at runtime.
//
// Thread Safety: Safe for concurrent use.
type Validator struct {
	mu       sync.RWMutex
	config   Config
	validate *validator.Validate
}

// DefaultConfig returns the default validation rules.
func DefaultConfig() Config {
	return Config{
		ValidTypes: DefaultValidTypes(),
		MaxSize:    DefaultMaxSize,
	}
}

// New creates a Validator. Zero-valued fields of cfg fall back to defaults.
func New(cfg Config) (*Validator, error) {
	if len(cfg.ValidTypes) == 0 {
		cfg.ValidTypes = DefaultValidTypes()
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultMaxSize
	}

	v := &Validator{validate: validator.New()}
	if err := v.validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid validation config: %w", err)
	}
	v.config = normalize(cfg)
	return v, nil
}

// Config returns a copy of the current rules.
func (v *Validator) Config() Config {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return Config{
		ValidTypes: slices.Clone(v.config.ValidTypes),
		MaxSize:    v.config.MaxSize,
	}
}

// Update merges patch into the current rules. The merged rules are checked
// before they replace the current ones; on error nothing changes.
func (v *Validator) Update(patch ConfigPatch) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	next := Config{
		ValidTypes: slices.Clone(v.config.ValidTypes),
		MaxSize:    v.config.MaxSize,
	}
	if patch.ValidTypes != nil {
		next.ValidTypes = slices.Clone(patch.ValidTypes)
	}
	if patch.MaxSize != nil {
		next.MaxSize = *patch.MaxSize
	}

	if err := v.validate.Struct(next); err != nil {
		return fmt.Errorf("invalid validation config: %w", err)
	}
	v.config = normalize(next)
	return nil
}

// Validate returns an InvalidFile error when the declared content type is
// not accepted, or a FileTooLarge error when the declared size exceeds the
// limit. The type check runs first.
func (v *Validator) Validate(file avatar.File) error {
	cfg := v.Config()

	if !accepts(cfg.ValidTypes, file.ContentType) {
		return avatar.NewError(avatar.KindInvalidFile,
			fmt.Sprintf("invalid file type %q", file.ContentType),
			avatar.ErrorContext{
				FileName:    file.Name,
				ContentType: file.ContentType,
				FileSize:    file.Size,
				Details: map[string]any{
					"valid_types": cfg.ValidTypes,
				},
			}, nil)
	}

	if file.Size > cfg.MaxSize {
		return avatar.NewError(avatar.KindFileTooLarge,
			fmt.Sprintf("file size %s exceeds maximum of %s", megabytes(file.Size), megabytes(cfg.MaxSize)),
			avatar.ErrorContext{
				FileName:    file.Name,
				ContentType: file.ContentType,
				FileSize:    file.Size,
				MaxSize:     cfg.MaxSize,
				Details: map[string]any{
					"file_size_mb": megabytes(file.Size),
					"max_size_mb":  megabytes(cfg.MaxSize),
				},
			}, nil)
	}

	return nil
}

// Summarize runs the same checks as Validate without failing and adds
// warnings: one when the file is above WarnRatio of the limit, and one when
// the sniffed content disagrees with the declared type.
func (v *Validator) Summarize(file avatar.File) Summary {
	cfg := v.Config()
	s := Summary{Errors: []string{}, Warnings: []string{}}

	if !accepts(cfg.ValidTypes, file.ContentType) {
		s.Errors = append(s.Errors, fmt.Sprintf("Invalid file type: %s. Accepted types: %s",
			displayType(file.ContentType), strings.Join(cfg.ValidTypes, ", ")))
	}

	switch {
	case file.Size > cfg.MaxSize:
		s.Errors = append(s.Errors, fmt.Sprintf("File is too large: %s (maximum %s)",
			megabytes(file.Size), megabytes(cfg.MaxSize)))
	case float64(file.Size) > WarnRatio*float64(cfg.MaxSize):
		s.Warnings = append(s.Warnings, fmt.Sprintf("File is close to the size limit: %s of %s",
			humanize.IBytes(uint64(file.Size)), humanize.IBytes(uint64(cfg.MaxSize))))
	}

	if len(file.Data) > 0 && file.ContentType != "" {
		detected := baseType(mimetype.Detect(file.Data).String())
		if detected != baseType(file.ContentType) {
			s.Warnings = append(s.Warnings, fmt.Sprintf("File content looks like %s but was declared as %s",
				detected, file.ContentType))
		}
	}

	s.Valid = len(s.Errors) == 0
	return s
}

func accepts(types []string, contentType string) bool {
	return contentType != "" && slices.Contains(types, strings.ToLower(contentType))
}

func normalize(cfg Config) Config {
	out := Config{MaxSize: cfg.MaxSize, ValidTypes: make([]string, 0, len(cfg.ValidTypes))}
	for _, t := range cfg.ValidTypes {
		out.ValidTypes = append(out.ValidTypes, strings.ToLower(strings.TrimSpace(t)))
	}
	return out
}

func baseType(contentType string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		return mediaType
	}
	return strings.ToLower(contentType)
}

func displayType(contentType string) string {
	if contentType == "" {
		return "unknown"
	}
	return contentType
}

// megabytes renders a byte count in binary megabytes, e.g. "10.00MB".
func megabytes(n int64) string {
	return fmt.Sprintf("%.2fMB", float64(n)/(1024*1024))
}
