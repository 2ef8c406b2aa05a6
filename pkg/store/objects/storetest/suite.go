// Package storetest provides a reusable conformance suite for objects.Store
// implementations.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/avatarsync/pkg/store/objects"
)

// Suite tests the objects.Store contract, not implementation details, making
// it reusable across implementations (memory, filesystem, S3, GCS).
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &storetest.Suite{
//	        NewStore: func(t *testing.T) objects.Store {
//	            return mystore.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type Suite struct {
	// NewStore creates a fresh store for each test.
	NewStore func(t *testing.T) objects.Store
}

// Run executes all tests in the suite.
func (suite *Suite) Run(t *testing.T) {
	t.Run("PutAndExists", suite.testPutAndExists)
	t.Run("Overwrite", suite.testOverwrite)
	t.Run("DeleteBatch", suite.testDeleteBatch)
	t.Run("DeleteMissingKeys", suite.testDeleteMissingKeys)
	t.Run("LargeDeleteBatch", suite.testLargeDeleteBatch)
	t.Run("InvalidKey", suite.testInvalidKey)
	t.Run("CancelledContext", suite.testCancelledContext)
}

func testContext() context.Context {
	return context.Background()
}

func mustPut(t *testing.T, store objects.Store, key string, data []byte) {
	t.Helper()
	require.NoError(t, store.Put(testContext(), key, data, "image/jpeg"), "Put should succeed")
}

func assertExists(t *testing.T, store objects.Store, key string, expected bool) {
	t.Helper()
	exists, err := store.Exists(testContext(), key)
	require.NoError(t, err, "Exists should not error")
	assert.Equal(t, expected, exists, "existence mismatch for %s", key)
}

func assertContent(t *testing.T, store objects.Store, key string, expected []byte) {
	t.Helper()
	reader, ok := store.(objects.Reader)
	if !ok {
		return
	}
	data, err := reader.Get(testContext(), key)
	require.NoError(t, err)
	assert.Equal(t, expected, data)
}

func (suite *Suite) testPutAndExists(t *testing.T) {
	store := suite.NewStore(t)

	assertExists(t, store, "avatars/U1/a/thumbnail.jpg", false)
	mustPut(t, store, "avatars/U1/a/thumbnail.jpg", []byte("thumb"))
	assertExists(t, store, "avatars/U1/a/thumbnail.jpg", true)
	assertContent(t, store, "avatars/U1/a/thumbnail.jpg", []byte("thumb"))

	if reader, ok := store.(objects.Reader); ok {
		_, err := reader.Get(testContext(), "avatars/U1/missing.jpg")
		assert.ErrorIs(t, err, objects.ErrObjectNotFound)
	}
}

func (suite *Suite) testOverwrite(t *testing.T) {
	store := suite.NewStore(t)

	mustPut(t, store, "k", []byte("one"))
	mustPut(t, store, "k", []byte("two"))
	assertContent(t, store, "k", []byte("two"))
}

func (suite *Suite) testDeleteBatch(t *testing.T) {
	store := suite.NewStore(t)

	mustPut(t, store, "u/1.jpg", []byte("1"))
	mustPut(t, store, "u/2.jpg", []byte("2"))
	mustPut(t, store, "u/3.jpg", []byte("3"))

	failures, err := store.DeleteBatch(testContext(), []string{"u/1.jpg", "u/2.jpg"})
	require.NoError(t, err)
	assert.Empty(t, failures)

	assertExists(t, store, "u/1.jpg", false)
	assertExists(t, store, "u/2.jpg", false)
	assertExists(t, store, "u/3.jpg", true)
}

func (suite *Suite) testDeleteMissingKeys(t *testing.T) {
	store := suite.NewStore(t)

	failures, err := store.DeleteBatch(testContext(), []string{"never/written.jpg"})
	require.NoError(t, err)
	assert.Empty(t, failures)

	failures, err = store.DeleteBatch(testContext(), nil)
	require.NoError(t, err)
	assert.Empty(t, failures)
}

func (suite *Suite) testLargeDeleteBatch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping large batch in short mode")
	}
	store := suite.NewStore(t)

	keys := make([]string, 0, 1005)
	for i := range 1005 {
		key := fmt.Sprintf("bulk/%04d.jpg", i)
		keys = append(keys, key)
		mustPut(t, store, key, []byte{byte(i)})
	}

	failures, err := store.DeleteBatch(testContext(), keys)
	require.NoError(t, err)
	assert.Empty(t, failures)
	assertExists(t, store, keys[0], false)
	assertExists(t, store, keys[1004], false)
}

func (suite *Suite) testInvalidKey(t *testing.T) {
	store := suite.NewStore(t)
	assert.Error(t, store.Put(testContext(), "", []byte("x"), "image/jpeg"))
}

func (suite *Suite) testCancelledContext(t *testing.T) {
	store := suite.NewStore(t)

	ctx, cancel := context.WithCancel(testContext())
	cancel()

	assert.ErrorIs(t, store.Put(ctx, "k", []byte("x"), "image/jpeg"), context.Canceled)
}
