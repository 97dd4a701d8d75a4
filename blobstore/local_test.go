package blobstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_Lifecycle(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root)
	ctx := t.Context()

	w, err := store.Create(ctx, "norm/part-r-00000")
	require.NoError(t, err)
	_, err = w.Write([]byte("doc1\t1:0.5 2:0.5\n"))
	require.NoError(t, err)

	// Not visible until Close.
	names, err := store.List(ctx, "norm/")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, w.Close())

	_, err = os.Stat(filepath.Join(root, "norm", "part-r-00000"))
	require.NoError(t, err)

	data, err := ReadAll(ctx, store, "norm/part-r-00000")
	require.NoError(t, err)
	assert.Equal(t, "doc1\t1:0.5 2:0.5\n", string(data))

	require.NoError(t, store.Delete(ctx, "norm/part-r-00000"))
	_, err = store.Open(ctx, "norm/part-r-00000")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, store.Delete(ctx, "norm/part-r-00000"))
}

func TestLocalStore_PutReplaces(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := t.Context()

	require.NoError(t, store.Put(ctx, "CURRENT", []byte("MANIFEST-000001.json")))
	require.NoError(t, store.Put(ctx, "CURRENT", []byte("MANIFEST-000002.json")))

	data, err := ReadAll(ctx, store, "CURRENT")
	require.NoError(t, err)
	assert.Equal(t, "MANIFEST-000002.json", string(data))
}

func TestLocalStore_Abort(t *testing.T) {
	root := t.TempDir()
	store := NewLocalStore(root)
	ctx := t.Context()

	w, err := store.Create(ctx, "spill")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())
	assert.NoError(t, w.Abort())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLocalStore_List(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := t.Context()

	for _, name := range []string{"means/part-r-00001", "means/part-r-00000", "norm/part-r-00000", "CURRENT"} {
		require.NoError(t, store.Put(ctx, name, []byte(name)))
	}

	names, err := store.List(ctx, "means/")
	require.NoError(t, err)
	assert.Equal(t, []string{"means/part-r-00000", "means/part-r-00001"}, names)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	require.NoError(t, DeletePrefix(ctx, store, "means/"))
	all, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"CURRENT", "norm/part-r-00000"}, all)
}

func TestLocalStore_MissingRoot(t *testing.T) {
	store := NewLocalStore(filepath.Join(t.TempDir(), "absent"))
	names, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLocalStore_EmptyBlob(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	ctx := t.Context()
	require.NoError(t, store.Put(ctx, "empty", nil))

	r, err := store.Open(ctx, "empty")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Empty(t, data)
	require.NoError(t, r.Close())
}

func TestCleanName(t *testing.T) {
	for _, bad := range []string{"", "/abs", "..", "../up", "a/../../b", "."} {
		_, err := CleanName(bad)
		assert.ErrorIs(t, err, ErrInvalidName, bad)
	}
	got, err := CleanName("a//b/./c")
	require.NoError(t, err)
	assert.Equal(t, "a/b/c", got)
}
