// Package storetest provides a reusable conformance suite for records.Store
// implementations.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/avatarsync/pkg/avatar"
	"github.com/marmos91/avatarsync/pkg/store/records"
)

// Suite tests the records.Store contract.
//
// Usage:
//
//	func TestMyStore(t *testing.T) {
//	    suite := &storetest.Suite{
//	        NewStore: func(t *testing.T) records.Store { return mystore.New() },
//	    }
//	    suite.Run(t)
//	}
type Suite struct {
	// NewStore creates a fresh, empty store for each test.
	NewStore func(t *testing.T) records.Store
}

// Run executes all tests in the suite.
func (suite *Suite) Run(t *testing.T) {
	t.Run("MissingUser", suite.testMissingUser)
	t.Run("UpdateCreates", suite.testUpdateCreates)
	t.Run("PartialUpdate", suite.testPartialUpdate)
	t.Run("ReplaceClears", suite.testReplaceClears)
	t.Run("UsersAreIsolated", suite.testUsersAreIsolated)
	t.Run("InvalidUserID", suite.testInvalidUserID)
	t.Run("ConcurrentUpdates", suite.testConcurrentUpdates)
}

func testContext() context.Context {
	return context.Background()
}

func full(prefix string) avatar.URLSet {
	return avatar.URLSet{
		Thumbnail: prefix + "/thumbnail.jpg",
		Medium:    prefix + "/medium.jpg",
		Full:      prefix + "/full.jpg",
		Legacy:    prefix + "/full.jpg",
	}
}

func mustGet(t *testing.T, store records.Store, userID string) avatar.URLSet {
	t.Helper()
	urls, err := store.Get(testContext(), userID)
	require.NoError(t, err, "Get should succeed")
	return urls
}

func (suite *Suite) testMissingUser(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.Get(testContext(), "nobody")
	assert.ErrorIs(t, err, records.ErrUserNotFound)
}

func (suite *Suite) testUpdateCreates(t *testing.T) {
	store := suite.NewStore(t)

	want := full("https://cdn/u1")
	require.NoError(t, store.Update(testContext(), "U1", records.PatchFrom(want)))
	assert.Equal(t, want, mustGet(t, store, "U1"))
}

func (suite *Suite) testPartialUpdate(t *testing.T) {
	store := suite.NewStore(t)

	require.NoError(t, store.Update(testContext(), "U1", records.PatchFrom(full("old"))))
	require.NoError(t, store.Update(testContext(), "U1", records.PatchFrom(avatar.URLSet{Medium: "new/medium.jpg"})))

	got := mustGet(t, store, "U1")
	assert.Equal(t, "new/medium.jpg", got.Medium)
	assert.Equal(t, "old/thumbnail.jpg", got.Thumbnail)
	assert.Equal(t, "old/full.jpg", got.Full)
}

func (suite *Suite) testReplaceClears(t *testing.T) {
	store := suite.NewStore(t)

	require.NoError(t, store.Update(testContext(), "U1", records.PatchFrom(full("new"))))
	require.NoError(t, store.Update(testContext(), "U1", records.ReplaceWith(avatar.URLSet{Legacy: "legacy.png"})))

	assert.Equal(t, avatar.URLSet{Legacy: "legacy.png"}, mustGet(t, store, "U1"))
}

func (suite *Suite) testUsersAreIsolated(t *testing.T) {
	store := suite.NewStore(t)

	require.NoError(t, store.Update(testContext(), "U1", records.PatchFrom(full("one"))))
	require.NoError(t, store.Update(testContext(), "U2", records.PatchFrom(full("two"))))

	assert.Equal(t, full("one"), mustGet(t, store, "U1"))
	assert.Equal(t, full("two"), mustGet(t, store, "U2"))
}

func (suite *Suite) testInvalidUserID(t *testing.T) {
	store := suite.NewStore(t)

	assert.ErrorIs(t, store.Update(testContext(), "", records.PatchFrom(full("x"))), records.ErrInvalidUserID)
	_, err := store.Get(testContext(), "")
	assert.ErrorIs(t, err, records.ErrInvalidUserID)
}

func (suite *Suite) testConcurrentUpdates(t *testing.T) {
	store := suite.NewStore(t)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			userID := fmt.Sprintf("user-%d", i)
			assert.NoError(t, store.Update(testContext(), userID, records.PatchFrom(full(userID))))
		}(i)
	}
	wg.Wait()

	for i := range 10 {
		userID := fmt.Sprintf("user-%d", i)
		assert.Equal(t, full(userID), mustGet(t, store, userID))
	}
}
