package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStore {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func putContent(t *testing.T, store *LocalStore, bucket, key, content string) {
	t.Helper()
	src := filepath.Join(t.TempDir(), "src")
	require.NoError(t, os.WriteFile(src, []byte(content), 0644))
	require.NoError(t, store.PutObject(context.Background(), bucket, key, src))
}

func TestLocalStore_PutAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	putContent(t, store, "thesis-data", "user1/heart/data.csv", "a,b,c")

	content, err := store.GetObject(ctx, "thesis-data", "user1/heart/data.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("a,b,c"), content)
}

func TestLocalStore_PutOverwrites(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	putContent(t, store, "thesis-data", "user1/data.csv", "old")
	putContent(t, store, "thesis-data", "user1/data.csv", "new")

	content, err := store.GetObject(ctx, "thesis-data", "user1/data.csv")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), content)
}

func TestLocalStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetObject(context.Background(), "thesis-data", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "object not found")
}

func TestLocalStore_PutMissingSource(t *testing.T) {
	store := newTestStore(t)

	err := store.PutObject(context.Background(), "thesis-data", "key", "/does/not/exist")
	assert.Error(t, err)
}

func TestLocalStore_ListRecursive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	putContent(t, store, "thesis-data", "user1/heart/a.csv", "a")
	putContent(t, store, "thesis-data", "user1/heart/explanatory/explanatory_data.csv", "e")
	putContent(t, store, "thesis-data", "user1/lung/b.csv", "b")
	putContent(t, store, "thesis-data", "user2/heart/c.csv", "c")

	keys, err := store.ListObjects(ctx, "thesis-data", "user1/", true)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"user1/heart/a.csv",
		"user1/heart/explanatory/explanatory_data.csv",
		"user1/lung/b.csv",
	}, keys)
}

func TestLocalStore_ListNonRecursiveCollapsesPrefixes(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	putContent(t, store, "thesis-data", "user1/heart/a.csv", "a")
	putContent(t, store, "thesis-data", "user1/heart/explanatory/explanatory_data.csv", "e")
	putContent(t, store, "thesis-data", "user1/lung/b.csv", "b")
	putContent(t, store, "thesis-data", "user1/top.csv", "t")

	keys, err := store.ListObjects(ctx, "thesis-data", "user1/", false)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"user1/heart/",
		"user1/lung/",
		"user1/top.csv",
	}, keys, "deeper keys collapse into first-segment common prefixes")
}

func TestLocalStore_ListMissingBucket(t *testing.T) {
	store := newTestStore(t)

	keys, err := store.ListObjects(context.Background(), "no-bucket", "", true)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLocalStore_Delete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	putContent(t, store, "thesis-data", "user1/a.csv", "a")
	require.NoError(t, store.DeleteObject(ctx, "thesis-data", "user1/a.csv"))

	_, err := store.GetObject(ctx, "thesis-data", "user1/a.csv")
	assert.Error(t, err)

	// Deleting an absent object is not an error
	assert.NoError(t, store.DeleteObject(ctx, "thesis-data", "user1/a.csv"))
}

func TestLocalStore_Buckets(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	exists, err := store.BucketExists(ctx, "thesis-data")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.EnsureBucket(ctx, "thesis-data"))

	exists, err = store.BucketExists(ctx, "thesis-data")
	require.NoError(t, err)
	assert.True(t, exists)

	// EnsureBucket is idempotent
	assert.NoError(t, store.EnsureBucket(ctx, "thesis-data"))
}

func TestLocalStore_CancelledContext(t *testing.T) {
	store := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.GetObject(ctx, "thesis-data", "key")
	assert.ErrorIs(t, err, context.Canceled)
}
