package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/avatarsync/pkg/store/objects"
	"github.com/marmos91/avatarsync/pkg/store/objects/storetest"
)

// fakeS3 is an in-memory stand-in for the S3 API.
type fakeS3 struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	deleteCalls  int
	failDelete   map[string]string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
		failDelete:   make(map[string]string),
	}
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Key] = data
	f.contentTypes[*in.Key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.objects[*in.Key]; !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++

	out := &s3.DeleteObjectsOutput{}
	for _, id := range in.Delete.Objects {
		if code, ok := f.failDelete[*id.Key]; ok {
			out.Errors = append(out.Errors, types.Error{
				Key:     id.Key,
				Code:    aws.String(code),
				Message: aws.String("denied"),
			})
			continue
		}
		delete(f.objects, *id.Key)
	}
	return out, nil
}

func newTestStore(t *testing.T, api API) *Store {
	t.Helper()
	s, err := New(context.Background(), StoreConfig{Client: api, Bucket: "avatars", KeyPrefix: "public/"})
	require.NoError(t, err)
	return s
}

func TestS3Store(t *testing.T) {
	suite := &storetest.Suite{
		NewStore: func(t *testing.T) objects.Store {
			return newTestStore(t, newFakeS3())
		},
	}
	suite.Run(t)
}

func TestS3StoreAppliesPrefixAndContentType(t *testing.T) {
	api := newFakeS3()
	s := newTestStore(t, api)

	require.NoError(t, s.Put(context.Background(), "u/1.jpg", []byte("x"), "image/jpeg"))

	_, ok := api.objects["public/u/1.jpg"]
	assert.True(t, ok)
	assert.Equal(t, "image/jpeg", api.contentTypes["public/u/1.jpg"])
}

func TestS3DeleteBatchChunksAndReportsFailures(t *testing.T) {
	api := newFakeS3()
	s := newTestStore(t, api)
	ctx := context.Background()

	keys := make([]string, 0, 1500)
	for i := range 1500 {
		key := "bulk/" + string(rune('a'+i%26)) + "/" + string(rune('a'+i/26%26)) + "/" + string(rune('a'+i/676))
		keys = append(keys, key)
	}
	api.failDelete["public/"+keys[3]] = "AccessDenied"
	api.failDelete["public/"+keys[4]] = "NoSuchKey"

	failures, err := s.DeleteBatch(ctx, keys)
	require.NoError(t, err)
	assert.Equal(t, 2, api.deleteCalls)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[keys[3]].Error(), "AccessDenied")
}

func TestS3DeleteBatchCancelled(t *testing.T) {
	s := newTestStore(t, newFakeS3())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	failures, err := s.DeleteBatch(ctx, []string{"a", "b"})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, failures, 2)
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(context.Background(), StoreConfig{Bucket: "b"})
	assert.Error(t, err)

	_, err = New(context.Background(), StoreConfig{Client: newFakeS3()})
	assert.Error(t, err)
}
