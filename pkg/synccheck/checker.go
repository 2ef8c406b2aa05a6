// Package synccheck verifies that a user's saved avatar URLs point at
// objects that actually exist.
package synccheck

import (
	"context"
	"fmt"

	"github.com/marmos91/avatarsync/pkg/avatar"
	"github.com/marmos91/avatarsync/pkg/store/objects"
	"github.com/marmos91/avatarsync/pkg/store/records"
	"github.com/marmos91/avatarsync/pkg/urls"
)

// Checker validates user records against object storage.
type Checker struct {
	records records.Store
	objects objects.Store
	layout  objects.URLLayout
}

// New creates a checker.
func New(rs records.Store, objs objects.Store, layout objects.URLLayout) *Checker {
	return &Checker{records: rs, objects: objs, layout: layout}
}

// Validate reads the user's record directly from the store and checks that
// all four URLs are set and every referenced object exists. Any problem is
// returned as a SyncFailed error.
func (c *Checker) Validate(ctx context.Context, userID string) error {
	errCtx := avatar.ErrorContext{UserID: userID}

	set, err := c.records.Get(ctx, userID)
	if err != nil {
		return avatar.NewError(avatar.KindSyncFailed, "failed to read user record", errCtx, err)
	}

	if !set.IsComplete() {
		var missing []string
		for _, v := range avatar.Variants() {
			if set.Get(v) == "" {
				missing = append(missing, string(v))
			}
		}
		errCtx.Details = map[string]any{"missing_variants": missing}
		return avatar.NewError(avatar.KindSyncFailed, "avatar URL set is incomplete", errCtx, nil)
	}

	var absent []string
	for _, key := range urls.ExtractObjectKeys(c.layout, set) {
		ok, err := c.objects.Exists(ctx, key)
		if err != nil {
			return avatar.NewError(avatar.KindSyncFailed,
				fmt.Sprintf("failed to check object %s", key), errCtx, err)
		}
		if !ok {
			absent = append(absent, key)
		}
	}
	if len(absent) > 0 {
		errCtx.Details = map[string]any{"missing_objects": absent}
		return avatar.NewError(avatar.KindSyncFailed,
			fmt.Sprintf("%d referenced objects are missing", len(absent)), errCtx, nil)
	}
	return nil
}
