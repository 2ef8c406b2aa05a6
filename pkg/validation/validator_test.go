package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/avatarsync/pkg/avatar"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func newValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New(DefaultConfig())
	require.NoError(t, err)
	return v
}

func TestValidate(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name string
		file avatar.File
		kind avatar.Kind
	}{
		{"png at limit", avatar.File{Name: "a.png", ContentType: "image/png", Size: DefaultMaxSize}, 0},
		{"webp small", avatar.File{Name: "a.webp", ContentType: "image/webp", Size: 1}, 0},
		{"one byte over", avatar.File{Name: "a.png", ContentType: "image/png", Size: DefaultMaxSize + 1}, avatar.KindFileTooLarge},
		{"gif rejected", avatar.File{Name: "a.gif", ContentType: "image/gif", Size: 10}, avatar.KindInvalidFile},
		{"missing type", avatar.File{Name: "a", Size: 10}, avatar.KindInvalidFile},
		{"type checked before size", avatar.File{Name: "a.gif", ContentType: "image/gif", Size: DefaultMaxSize * 2}, avatar.KindInvalidFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.file)
			if tt.kind == 0 {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			kind, ok := avatar.KindOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestValidateErrorContext(t *testing.T) {
	v := newValidator(t)

	err := v.Validate(avatar.File{Name: "big.png", ContentType: "image/png", Size: 12 * 1024 * 1024})
	e, ok := avatar.AsError(err)
	require.True(t, ok)
	assert.Equal(t, int64(12*1024*1024), e.Context.FileSize)
	assert.Equal(t, DefaultMaxSize, e.Context.MaxSize)
	assert.Equal(t, "12.00MB", e.Context.Details["file_size_mb"])
	assert.Equal(t, "10.00MB", e.Context.Details["max_size_mb"])

	err = v.Validate(avatar.File{Name: "a.gif", ContentType: "image/gif", Size: 1})
	e, ok = avatar.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "image/gif", e.Context.ContentType)
	assert.Equal(t, DefaultValidTypes(), e.Context.Details["valid_types"])
}

func TestSummarizeWarnings(t *testing.T) {
	v := newValidator(t)

	s := v.Summarize(avatar.File{Name: "a.png", ContentType: "image/png", Size: DefaultMaxSize * 81 / 100})
	assert.True(t, s.Valid)
	assert.Empty(t, s.Errors)
	assert.Len(t, s.Warnings, 1)

	s = v.Summarize(avatar.File{Name: "a.png", ContentType: "image/png", Size: DefaultMaxSize / 2})
	assert.True(t, s.Valid)
	assert.Empty(t, s.Warnings)

	s = v.Summarize(avatar.File{Name: "a.gif", ContentType: "image/gif", Size: DefaultMaxSize + 1})
	assert.False(t, s.Valid)
	assert.Len(t, s.Errors, 2)
}

func TestSummarizeContentMismatch(t *testing.T) {
	v := newValidator(t)

	s := v.Summarize(avatar.NewFile("a.jpg", "image/jpeg", pngHeader))
	assert.True(t, s.Valid)
	require.Len(t, s.Warnings, 1)
	assert.Contains(t, s.Warnings[0], "image/png")

	s = v.Summarize(avatar.NewFile("a.png", "image/png", pngHeader))
	assert.Empty(t, s.Warnings)
}

func TestUpdateMerges(t *testing.T) {
	v := newValidator(t)

	size := int64(1024)
	require.NoError(t, v.Update(ConfigPatch{MaxSize: &size}))

	cfg := v.Config()
	assert.Equal(t, size, cfg.MaxSize)
	assert.Equal(t, DefaultValidTypes(), cfg.ValidTypes, "types must survive a size-only patch")

	require.NoError(t, v.Update(ConfigPatch{ValidTypes: []string{"IMAGE/GIF"}}))
	assert.NoError(t, v.Validate(avatar.File{ContentType: "image/gif", Size: 10}))
	assert.Error(t, v.Validate(avatar.File{ContentType: "image/gif", Size: 2048}))
}

func TestUpdateRejectsInvalid(t *testing.T) {
	v := newValidator(t)

	zero := int64(0)
	assert.Error(t, v.Update(ConfigPatch{MaxSize: &zero}))
	assert.Error(t, v.Update(ConfigPatch{ValidTypes: []string{}}))
	assert.Equal(t, DefaultConfig(), v.Config())
}

func TestNewAppliesDefaults(t *testing.T) {
	v, err := New(Config{})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), v.Config())

	_, err = New(Config{MaxSize: -1})
	assert.Error(t, err)
}
