// Package pipeline implements the image processing and storage upload
// collaborator: it renders the avatar renditions, writes them to object
// storage and persists the resulting URLs on the user record.
package pipeline

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/avatarsync/internal/logger"
	"github.com/marmos91/avatarsync/pkg/avatar"
	"github.com/marmos91/avatarsync/pkg/imaging"
	"github.com/marmos91/avatarsync/pkg/store/objects"
)

// DefaultConcurrency is the number of renditions uploaded in parallel.
const DefaultConcurrency = 3

// URLWriter persists new avatar URLs on a user record.
// *urls.Repository satisfies it.
type URLWriter interface {
	Update(ctx context.Context, userID string, urls avatar.URLSet) error
}

// Config configures an Uploader.
type Config struct {
	// KeyPrefix is prepended to every object key (e.g. "avatars")
	KeyPrefix string

	// Concurrency bounds parallel rendition uploads
	Concurrency int
}

// Uploader runs the process -> upload -> persist steps of one avatar upload.
//
// Thread Safety: Safe for concurrent use; each Upload call owns its state.
type Uploader struct {
	processor *imaging.Processor
	store     objects.Store
	layout    objects.URLLayout
	writer    URLWriter
	config    Config
	newID     func() string
}

// NewUploader creates an uploader.
func NewUploader(processor *imaging.Processor, store objects.Store, layout objects.URLLayout, writer URLWriter, config Config) *Uploader {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	return &Uploader{
		processor: processor,
		store:     store,
		layout:    layout,
		writer:    writer,
		config:    config,
		newID:     uuid.NewString,
	}
}

// Upload renders file, writes every rendition and saves the new URLs for
// userID.
//
// Progress is reported through hooks on a 0-100 scale: processing 0-30,
// uploading 30-80, updating 80-95 and complete at 100. hooks.Stored is called
// for every object written, including those written before a later failure,
// so the caller can clean them up.
//
// Returns:
//   - avatar.URLSet: the complete set of new URLs (legacy shares the full
//     rendition)
//   - error: ProcessingFailed, UploadFailed or DatabaseUpdateFailed
func (u *Uploader) Upload(ctx context.Context, file avatar.File, userID string, hooks avatar.UploadHooks) (avatar.URLSet, error) {
	errCtx := avatar.ErrorContext{
		UserID:      userID,
		FileName:    file.Name,
		ContentType: file.ContentType,
		FileSize:    file.Size,
	}

	// ========================================================================
	// Step 1: Render renditions
	// ========================================================================

	hooks.EmitProgress(avatar.ProgressEvent{
		Stage:       avatar.StageProcessing,
		Progress:    0,
		Message:     "Processing image",
		CurrentFile: file.Name,
	})

	renditions, err := u.processor.Render(file.Data)
	if err != nil {
		return avatar.URLSet{}, avatar.NewError(avatar.KindProcessingFailed,
			"failed to process image", errCtx, err)
	}

	hooks.EmitProgress(avatar.ProgressEvent{
		Stage:       avatar.StageProcessing,
		Progress:    30,
		Message:     fmt.Sprintf("Rendered %d sizes", len(renditions)),
		CurrentFile: file.Name,
	})

	// ========================================================================
	// Step 2: Upload renditions
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return avatar.URLSet{}, avatar.NewError(avatar.KindUploadFailed,
			"upload cancelled", errCtx, err)
	}

	base := u.newID()
	keys := make(map[avatar.Variant]string, len(renditions))
	for _, r := range renditions {
		keys[r.Variant] = u.objectKey(userID, base, r.Variant)
	}

	var (
		mu   sync.Mutex
		done int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.config.Concurrency)

	for _, r := range renditions {
		key := keys[r.Variant]
		g.Go(func() error {
			if err := u.store.Put(gctx, key, r.Data, r.ContentType); err != nil {
				return fmt.Errorf("put %s: %w", key, err)
			}

			mu.Lock()
			defer mu.Unlock()
			done++
			hooks.RecordStored(key)
			hooks.EmitProgress(avatar.ProgressEvent{
				Stage:       avatar.StageUploading,
				Progress:    30 + 50*done/len(renditions),
				Message:     fmt.Sprintf("Uploaded %s", r.Variant),
				CurrentFile: key,
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return avatar.URLSet{}, avatar.NewError(avatar.KindUploadFailed,
			"failed to upload avatar renditions", errCtx, err)
	}

	urls := avatar.URLSet{
		Thumbnail: u.layout.PublicURL(keys[avatar.VariantThumbnail]),
		Medium:    u.layout.PublicURL(keys[avatar.VariantMedium]),
		Full:      u.layout.PublicURL(keys[avatar.VariantFull]),
	}
	urls.Legacy = urls.Full

	// ========================================================================
	// Step 3: Persist URLs
	// ========================================================================

	hooks.EmitProgress(avatar.ProgressEvent{
		Stage:    avatar.StageUpdating,
		Progress: 80,
		Message:  "Saving avatar URLs",
	})

	if err := u.writer.Update(ctx, userID, urls); err != nil {
		return avatar.URLSet{}, avatar.Wrap(err, avatar.KindDatabaseUpdateFailed,
			"failed to save avatar URLs", errCtx)
	}

	hooks.EmitProgress(avatar.ProgressEvent{
		Stage:    avatar.StageUpdating,
		Progress: 95,
		Message:  "Avatar URLs saved",
	})
	hooks.EmitProgress(avatar.ProgressEvent{
		Stage:    avatar.StageComplete,
		Progress: 100,
		Message:  "Upload complete",
	})

	logger.Debug("Uploaded %d renditions for %s under %s", len(renditions), userID, base)
	return urls, nil
}

func (u *Uploader) objectKey(userID, base string, v avatar.Variant) string {
	return path.Join(u.config.KeyPrefix, SanitizeSegment(userID), base, string(v)+".jpg")
}

// SanitizeSegment maps s to a single safe key segment: characters outside
// [A-Za-z0-9._-] become '_' and "." / ".." are rejected as "_".
func SanitizeSegment(s string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
	if out == "" || out == "." || out == ".." {
		return "_"
	}
	return out
}
