package local

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docuforge/ragcore/internal/apierr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestPutThenGetRoundTrips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	data := []byte("raw document bytes")

	require.NoError(t, store.Put(ctx, "ws-1/doc-1-report.pdf", bytes.NewReader(data), int64(len(data))))

	rc, size, err := store.Get(ctx, "ws-1/doc-1-report.pdf")
	require.NoError(t, err)
	defer rc.Close()
	require.EqualValues(t, len(data), size)

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestPutRejectsExistingPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "ws-1/doc-1-a.pdf", bytes.NewReader([]byte("one")), 3))
	err := store.Put(ctx, "ws-1/doc-1-a.pdf", bytes.NewReader([]byte("two")), 3)
	require.Equal(t, apierr.Internal, apierr.ClassOf(err))
}

func TestGetUnknownPathIsNotFound(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.Get(context.Background(), "ws-1/missing.pdf")
	require.Equal(t, apierr.NotFound, apierr.ClassOf(err))
}

func TestDeleteRemovesBlob(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "ws-1/doc-1-a.pdf", bytes.NewReader([]byte("x")), 1))
	require.NoError(t, store.Delete(ctx, "ws-1/doc-1-a.pdf"))

	exists, err := store.Exists(ctx, "ws-1/doc-1-a.pdf")
	require.NoError(t, err)
	require.False(t, exists)
}

func TestDeleteUnknownPathIsANoop(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Delete(context.Background(), "ws-1/never-existed.pdf"))
}

func TestDeletePrefixRemovesWholeWorkspace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "ws-1/doc-1-a.pdf", bytes.NewReader([]byte("a")), 1))
	require.NoError(t, store.Put(ctx, "ws-1/doc-2-b.pdf", bytes.NewReader([]byte("b")), 1))
	require.NoError(t, store.Put(ctx, "ws-2/doc-3-c.pdf", bytes.NewReader([]byte("c")), 1))

	require.NoError(t, store.DeletePrefix(ctx, "ws-1/"))

	for _, path := range []string{"ws-1/doc-1-a.pdf", "ws-1/doc-2-b.pdf"} {
		exists, err := store.Exists(ctx, path)
		require.NoError(t, err)
		require.False(t, exists, path)
	}
	exists, err := store.Exists(ctx, "ws-2/doc-3-c.pdf")
	require.NoError(t, err)
	require.True(t, exists)
}

func TestPutNeverWritesOutsideRoot(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "raw")
	store, err := New(root)
	require.NoError(t, err)

	err = store.Put(context.Background(), "../escape.txt", bytes.NewReader([]byte("x")), 1)
	if err != nil {
		require.Equal(t, apierr.Internal, apierr.ClassOf(err))
	}
	_, statErr := os.Stat(filepath.Join(parent, "escape.txt"))
	require.True(t, os.IsNotExist(statErr))
}
