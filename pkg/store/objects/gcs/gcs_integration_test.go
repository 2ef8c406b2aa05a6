//go:build integration

package gcs

import (
	"context"
	"os"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/avatarsync/pkg/store/objects"
	"github.com/marmos91/avatarsync/pkg/store/objects/storetest"
)

// TestGCSStore_Integration runs the object store suite against
// fake-gcs-server.
//
// Prerequisites:
//
//	docker run --rm -p 4443:4443 fsouza/fake-gcs-server -scheme http
//	STORAGE_EMULATOR_HOST=localhost:4443 go test -tags=integration ./pkg/store/objects/gcs/...
func TestGCSStore_Integration(t *testing.T) {
	if os.Getenv("STORAGE_EMULATOR_HOST") == "" {
		t.Skip("STORAGE_EMULATOR_HOST not set")
	}
	ctx := context.Background()

	client, err := storage.NewClient(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	bucketName := "avatarsync-test-bucket"
	_ = client.Bucket(bucketName).Create(ctx, "test-project", nil)

	suite := &storetest.Suite{
		NewStore: func(t *testing.T) objects.Store {
			return New(client, bucketName, t.Name()+"/")
		},
	}
	suite.Run(t)
}
