// Package urls reads and writes the avatar URL fields of user records and
// provides the pure helpers that operate on URL sets: completeness,
// variant preference with fallback, object key extraction and diffing.
package urls

import (
	"context"
	"errors"

	"github.com/marmos91/avatarsync/internal/logger"
	"github.com/marmos91/avatarsync/pkg/avatar"
	"github.com/marmos91/avatarsync/pkg/store/objects"
	"github.com/marmos91/avatarsync/pkg/store/records"
)

// fallbackOrder lists, for each requested variant, the order in which
// variants are tried.
var fallbackOrder = map[avatar.Variant][]avatar.Variant{
	avatar.VariantThumbnail: {avatar.VariantThumbnail, avatar.VariantMedium, avatar.VariantFull, avatar.VariantLegacy},
	avatar.VariantMedium:    {avatar.VariantMedium, avatar.VariantFull, avatar.VariantThumbnail, avatar.VariantLegacy},
	avatar.VariantFull:      {avatar.VariantFull, avatar.VariantMedium, avatar.VariantThumbnail, avatar.VariantLegacy},
	avatar.VariantLegacy:    {avatar.VariantLegacy, avatar.VariantFull, avatar.VariantMedium, avatar.VariantThumbnail},
}

// FieldDifference describes one variant that differs between two sets.
type FieldDifference struct {
	Variant avatar.Variant
	Left    string
	Right   string
}

// Comparison is the result of Diff.
type Comparison struct {
	Identical   bool
	Differences []FieldDifference
}

// Repository reads and writes avatar URLs on user records.
type Repository struct {
	store  records.Store
	layout objects.URLLayout
	cache  *Cache
}

// Option configures a Repository.
type Option func(*Repository)

// WithCache enables read-through caching. Writes refresh the cache.
func WithCache(c *Cache) Option {
	return func(r *Repository) {
		r.cache = c
	}
}

// NewRepository creates a repository over store. layout is used to map
// URLs back to object keys.
func NewRepository(store records.Store, layout objects.URLLayout, opts ...Option) *Repository {
	r := &Repository{store: store, layout: layout}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache returns the configured cache, or nil.
func (r *Repository) Cache() *Cache {
	return r.cache
}

// GetCurrent returns the user's current URLs, served from the cache when
// one is configured. It never fails: read errors are logged and produce an
// empty set.
func (r *Repository) GetCurrent(ctx context.Context, userID string) avatar.URLSet {
	if r.cache != nil {
		if urls, ok := r.cache.Lookup(userID); ok {
			return urls
		}
	}

	urls, err := r.Snapshot(ctx, userID)
	if err != nil {
		logger.Warn("Failed to read avatar URLs for %s: %v", userID, err)
		return avatar.URLSet{}
	}
	return urls
}

// Snapshot reads the user's current URLs from the record store, bypassing
// the cache, and refreshes the cached entry. A user without a record has an
// empty set; any other read failure is returned.
func (r *Repository) Snapshot(ctx context.Context, userID string) (avatar.URLSet, error) {
	urls, err := r.store.Get(ctx, userID)
	if errors.Is(err, records.ErrUserNotFound) {
		return avatar.URLSet{}, nil
	}
	if err != nil {
		return avatar.URLSet{}, err
	}

	if r.cache != nil {
		r.cache.Store(userID, urls)
	}
	return urls, nil
}

// Update writes the non-empty fields of urls. Failures are returned as
// DatabaseUpdateFailed errors.
func (r *Repository) Update(ctx context.Context, userID string, urls avatar.URLSet) error {
	return r.write(ctx, userID, records.PatchFrom(urls), "failed to update avatar URLs")
}

// Restore overwrites all four fields with urls, clearing fields that are
// empty in urls. Failures are returned as DatabaseUpdateFailed errors.
func (r *Repository) Restore(ctx context.Context, userID string, urls avatar.URLSet) error {
	return r.write(ctx, userID, records.ReplaceWith(urls), "failed to restore avatar URLs")
}

func (r *Repository) write(ctx context.Context, userID string, patch records.Patch, message string) error {
	if err := r.store.Update(ctx, userID, patch); err != nil {
		if r.cache != nil {
			_ = r.cache.Invalidate(context.WithoutCancel(ctx), userID, ReasonAvatarUpdate)
		}
		return avatar.NewError(avatar.KindDatabaseUpdateFailed, message,
			avatar.ErrorContext{UserID: userID}, err)
	}

	if r.cache != nil {
		_ = r.cache.Invalidate(ctx, userID, ReasonAvatarUpdate)
	}
	logger.Debug("Wrote avatar URLs for %s", userID)
	return nil
}

// IsComplete reports whether all four variants are present.
func IsComplete(urls avatar.URLSet) bool {
	return urls.IsComplete()
}

// PreferredURL returns the URL for variant, falling back through the
// variant's fallback order. It returns false when the set is empty.
func PreferredURL(urls avatar.URLSet, variant avatar.Variant) (string, bool) {
	order, ok := fallbackOrder[variant]
	if !ok {
		order = fallbackOrder[avatar.VariantMedium]
	}
	for _, v := range order {
		if u := urls.Get(v); u != "" {
			return u, true
		}
	}
	return "", false
}

// ExtractObjectKeys returns the storage keys referenced by urls, in variant
// order. URLs outside the layout's bucket are skipped and duplicate keys
// (legacy usually shares an object with another variant) appear once.
func (r *Repository) ExtractObjectKeys(urls avatar.URLSet) []string {
	return ExtractObjectKeys(r.layout, urls)
}

// ExtractObjectKeys is the layout-explicit form of Repository.ExtractObjectKeys.
func ExtractObjectKeys(layout objects.URLLayout, urls avatar.URLSet) []string {
	seen := make(map[string]struct{}, 4)
	keys := make([]string, 0, 4)
	for _, v := range avatar.Variants() {
		key, ok := layout.ObjectKey(urls.Get(v))
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

// Diff compares two sets field by field in variant order.
func Diff(a, b avatar.URLSet) Comparison {
	c := Comparison{Differences: []FieldDifference{}}
	for _, v := range avatar.Variants() {
		if a.Get(v) != b.Get(v) {
			c.Differences = append(c.Differences, FieldDifference{Variant: v, Left: a.Get(v), Right: b.Get(v)})
		}
	}
	c.Identical = len(c.Differences) == 0
	return c
}
