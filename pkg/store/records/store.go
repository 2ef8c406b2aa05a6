// Package records defines the user-record collaborator: the place where the
// four avatar URLs of each user are persisted.
//
// Implementations live in sub-packages: memory, badger, sql (SQLite and
// PostgreSQL) and firestore.
package records

import (
	"context"
	"errors"

	"github.com/marmos91/avatarsync/pkg/avatar"
)

var (
	// ErrUserNotFound indicates there is no record for the user
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidUserID indicates an empty user identifier
	ErrInvalidUserID = errors.New("invalid user id")
)

// Store persists avatar URLs per user.
type Store interface {
	// Get returns the URLs stored for userID, or ErrUserNotFound.
	Get(ctx context.Context, userID string) (avatar.URLSet, error)

	// Update applies patch to the record of userID, creating the record
	// when it does not exist yet. Fields left nil in patch are untouched.
	Update(ctx context.Context, userID string, patch Patch) error
}

// Patch is a partial update of a user's avatar URLs. A nil field is left
// alone; a non-nil field (including a pointer to "") is written.
type Patch struct {
	Thumbnail *string
	Medium    *string
	Full      *string
	Legacy    *string
}

// PatchFrom builds a patch that writes only the non-empty fields of urls.
func PatchFrom(urls avatar.URLSet) Patch {
	var p Patch
	for _, v := range avatar.Variants() {
		if val := urls.Get(v); val != "" {
			p.set(v, val)
		}
	}
	return p
}

// ReplaceWith builds a patch that overwrites all four fields, clearing the
// ones empty in urls.
func ReplaceWith(urls avatar.URLSet) Patch {
	var p Patch
	for _, v := range avatar.Variants() {
		p.set(v, urls.Get(v))
	}
	return p
}

func (p *Patch) set(v avatar.Variant, val string) {
	switch v {
	case avatar.VariantThumbnail:
		p.Thumbnail = &val
	case avatar.VariantMedium:
		p.Medium = &val
	case avatar.VariantFull:
		p.Full = &val
	case avatar.VariantLegacy:
		p.Legacy = &val
	}
}

// Field returns the patch value for v and whether it is set.
func (p Patch) Field(v avatar.Variant) (string, bool) {
	var ptr *string
	switch v {
	case avatar.VariantThumbnail:
		ptr = p.Thumbnail
	case avatar.VariantMedium:
		ptr = p.Medium
	case avatar.VariantFull:
		ptr = p.Full
	case avatar.VariantLegacy:
		ptr = p.Legacy
	}
	if ptr == nil {
		return "", false
	}
	return *ptr, true
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Thumbnail == nil && p.Medium == nil && p.Full == nil && p.Legacy == nil
}

// Apply returns u with the patch applied.
func (p Patch) Apply(u avatar.URLSet) avatar.URLSet {
	for _, v := range avatar.Variants() {
		if val, ok := p.Field(v); ok {
			u.Set(v, val)
		}
	}
	return u
}
