package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/avatarsync/pkg/avatar"
	"github.com/marmos91/avatarsync/pkg/imaging"
	"github.com/marmos91/avatarsync/pkg/store/objects"
	objmemory "github.com/marmos91/avatarsync/pkg/store/objects/memory"
	recmemory "github.com/marmos91/avatarsync/pkg/store/records/memory"
	"github.com/marmos91/avatarsync/pkg/urls"
)

var layout = objects.URLLayout{BaseURL: "https://proj.example.co", Bucket: "avatars"}

func pngFile(t *testing.T) avatar.File {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: uint8(4 * x), G: uint8(5 * y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return avatar.NewFile("me.png", "image/png", buf.Bytes())
}

type recorder struct {
	mu     sync.Mutex
	events []avatar.ProgressEvent
	stored []string
}

func (r *recorder) hooks() avatar.UploadHooks {
	return avatar.UploadHooks{
		Progress: func(ev avatar.ProgressEvent) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.events = append(r.events, ev)
		},
		Stored: func(key string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.stored = append(r.stored, key)
		},
	}
}

// failingStore fails Put for keys containing match.
type failingStore struct {
	*objmemory.Store
	match string
}

func (s *failingStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if strings.Contains(key, s.match) {
		return errors.New("bucket unavailable")
	}
	return s.Store.Put(ctx, key, data, contentType)
}

type failingWriter struct{}

func (failingWriter) Update(context.Context, string, avatar.URLSet) error {
	return errors.New("connection reset")
}

func newUploader(store objects.Store, writer URLWriter, concurrency int) *Uploader {
	p := imaging.NewProcessor(imaging.Config{ThumbnailSize: 8, MediumSize: 16, FullSize: 32})
	u := NewUploader(p, store, layout, writer, Config{KeyPrefix: "avatars", Concurrency: concurrency})
	u.newID = func() string { return "fixed" }
	return u
}

func TestUploadSuccess(t *testing.T) {
	ctx := context.Background()
	objs := objmemory.New()
	recs := recmemory.New()
	repo := urls.NewRepository(recs, layout)
	u := newUploader(objs, repo, 0)
	rec := &recorder{}

	got, err := u.Upload(ctx, pngFile(t), "user@example.com", rec.hooks())
	require.NoError(t, err)

	assert.True(t, got.IsComplete())
	assert.Equal(t, got.Full, got.Legacy)
	assert.Equal(t, layout.PublicURL("avatars/user_example.com/fixed/medium.jpg"), got.Medium)
	assert.Equal(t, got, repo.GetCurrent(ctx, "user@example.com"))

	assert.Equal(t, []string{
		"avatars/user_example.com/fixed/full.jpg",
		"avatars/user_example.com/fixed/medium.jpg",
		"avatars/user_example.com/fixed/thumbnail.jpg",
	}, objs.Keys())

	sort.Strings(rec.stored)
	assert.Equal(t, objs.Keys(), rec.stored)

	last := 0
	for _, ev := range rec.events {
		assert.GreaterOrEqual(t, ev.Progress, last)
		last = ev.Progress
	}
	assert.Equal(t, 100, last)
	assert.Equal(t, avatar.StageComplete, rec.events[len(rec.events)-1].Stage)
}

func TestUploadProcessingFailure(t *testing.T) {
	objs := objmemory.New()
	u := newUploader(objs, urls.NewRepository(recmemory.New(), layout), 0)

	file := avatar.NewFile("broken.png", "image/png", []byte("not a png"))
	_, err := u.Upload(context.Background(), file, "u1", avatar.UploadHooks{})
	require.Error(t, err)
	assert.True(t, avatar.IsKind(err, avatar.KindProcessingFailed))
	assert.Equal(t, 0, objs.Len())
}

func TestUploadStorageFailureReportsWrittenKeys(t *testing.T) {
	store := &failingStore{Store: objmemory.New(), match: "medium"}
	recs := recmemory.New()
	u := newUploader(store, urls.NewRepository(recs, layout), 1)
	rec := &recorder{}

	_, err := u.Upload(context.Background(), pngFile(t), "u2", rec.hooks())
	require.Error(t, err)
	assert.True(t, avatar.IsKind(err, avatar.KindUploadFailed))

	sort.Strings(rec.stored)
	assert.Equal(t, store.Keys(), rec.stored)
	assert.Contains(t, rec.stored, "avatars/u2/fixed/thumbnail.jpg")

	_, err = recs.Get(context.Background(), "u2")
	assert.Error(t, err, "no record is written when an upload fails")
}

func TestUploadRecordFailure(t *testing.T) {
	objs := objmemory.New()
	u := newUploader(objs, failingWriter{}, 0)
	rec := &recorder{}

	_, err := u.Upload(context.Background(), pngFile(t), "u3", rec.hooks())
	require.Error(t, err)
	assert.True(t, avatar.IsKind(err, avatar.KindDatabaseUpdateFailed))
	assert.Len(t, rec.stored, 3)
}

func TestSanitizeSegment(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc-DEF_1.2", "abc-DEF_1.2"},
		{"a/b", "a_b"},
		{"..", "_"},
		{"", "_"},
		{"ünï", "_n_"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeSegment(tt.in), tt.in)
	}
}
