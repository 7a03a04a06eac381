package local

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/domain"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vectors.json")
	store, err := New(path)
	require.NoError(t, err)
	require.NoError(t, store.EnsureCollection(context.Background(), 3, "cosine"))
	return store, path
}

func point(id, workspaceID, documentID string, vec []float32) adapter.VectorPoint {
	return adapter.VectorPoint{
		ID:     id,
		Vector: vec,
		Payload: domain.VectorPayload{
			WorkspaceID: workspaceID, DocumentID: documentID,
			DocumentName: "doc.pdf", PageStart: 1, PageEnd: 1, Snippet: id,
		},
	}
}

func TestSearchOrdersByDecreasingSimilarity(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []adapter.VectorPoint{
		point("far", "ws-1", "d1", []float32{0, 1, 0}),
		point("near", "ws-1", "d1", []float32{1, 0.1, 0}),
		point("exact", "ws-1", "d1", []float32{1, 0, 0}),
	}))

	hits, err := store.Search(ctx, []float32{1, 0, 0}, 3, adapter.SearchFilter{WorkspaceID: "ws-1"})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	require.Equal(t, "exact", hits[0].Payload.Snippet)
	require.Equal(t, "near", hits[1].Payload.Snippet)
	require.Equal(t, "far", hits[2].Payload.Snippet)
}

func TestSearchFiltersByWorkspaceAndDocument(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []adapter.VectorPoint{
		point("a", "ws-1", "d1", []float32{1, 0, 0}),
		point("b", "ws-1", "d2", []float32{1, 0, 0}),
		point("c", "ws-2", "d3", []float32{1, 0, 0}),
	}))

	hits, err := store.Search(ctx, []float32{1, 0, 0}, 10, adapter.SearchFilter{WorkspaceID: "ws-1"})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	hits, err = store.Search(ctx, []float32{1, 0, 0}, 10, adapter.SearchFilter{WorkspaceID: "ws-1", DocumentID: "d2"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "b", hits[0].Payload.Snippet)
}

func TestSearchRespectsTopK(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []adapter.VectorPoint{
		point("a", "ws-1", "d1", []float32{1, 0, 0}),
		point("b", "ws-1", "d1", []float32{0, 1, 0}),
		point("c", "ws-1", "d1", []float32{0, 0, 1}),
	}))

	hits, err := store.Search(ctx, []float32{1, 0, 0}, 2, adapter.SearchFilter{WorkspaceID: "ws-1"})
	require.NoError(t, err)
	require.Len(t, hits, 2)
}

func TestSearchBreaksScoreTiesByInsertionOrder(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()

	// Identical vectors score identically against any query, so the
	// result order is decided purely by the tie-break.
	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, store.Upsert(ctx, []adapter.VectorPoint{point(id, "ws-1", "d1", []float32{1, 0, 0})}))
	}

	hits, err := store.Search(ctx, []float32{1, 0, 0}, 10, adapter.SearchFilter{WorkspaceID: "ws-1"})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	require.Equal(t, "first", hits[0].Payload.Snippet)
	require.Equal(t, "second", hits[1].Payload.Snippet)
	require.Equal(t, "third", hits[2].Payload.Snippet)

	// Re-upserting an existing point keeps its original position.
	require.NoError(t, store.Upsert(ctx, []adapter.VectorPoint{point("first", "ws-1", "d1", []float32{1, 0, 0})}))
	hits, err = store.Search(ctx, []float32{1, 0, 0}, 10, adapter.SearchFilter{WorkspaceID: "ws-1"})
	require.NoError(t, err)
	require.Equal(t, "first", hits[0].Payload.Snippet)

	// The order survives a reload from disk.
	reopened, err := New(path)
	require.NoError(t, err)
	require.NoError(t, reopened.EnsureCollection(ctx, 3, "cosine"))
	hits, err = reopened.Search(ctx, []float32{1, 0, 0}, 10, adapter.SearchFilter{WorkspaceID: "ws-1"})
	require.NoError(t, err)
	require.Len(t, hits, 3)
	require.Equal(t, "first", hits[0].Payload.Snippet)
	require.Equal(t, "second", hits[1].Payload.Snippet)
	require.Equal(t, "third", hits[2].Payload.Snippet)
}

func TestUpsertSameIDConverges(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []adapter.VectorPoint{point("a", "ws-1", "d1", []float32{1, 0, 0})}))
	require.NoError(t, store.Upsert(ctx, []adapter.VectorPoint{point("a", "ws-1", "d1", []float32{0, 1, 0})}))

	hits, err := store.Search(ctx, []float32{0, 1, 0}, 10, adapter.SearchFilter{WorkspaceID: "ws-1"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestDeleteByFilterRemovesWorkspacePoints(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []adapter.VectorPoint{
		point("a", "ws-1", "d1", []float32{1, 0, 0}),
		point("b", "ws-2", "d2", []float32{1, 0, 0}),
	}))

	require.NoError(t, store.DeleteByFilter(ctx, adapter.SearchFilter{WorkspaceID: "ws-1"}))

	hits, err := store.Search(ctx, []float32{1, 0, 0}, 10, adapter.SearchFilter{WorkspaceID: "ws-1"})
	require.NoError(t, err)
	require.Empty(t, hits)

	hits, err = store.Search(ctx, []float32{1, 0, 0}, 10, adapter.SearchFilter{WorkspaceID: "ws-2"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestPointsSurviveReopen(t *testing.T) {
	store, path := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, []adapter.VectorPoint{point("a", "ws-1", "d1", []float32{1, 0, 0})}))

	reopened, err := New(path)
	require.NoError(t, err)
	require.NoError(t, reopened.EnsureCollection(ctx, 3, "cosine"))

	hits, err := reopened.Search(ctx, []float32{1, 0, 0}, 10, adapter.SearchFilter{WorkspaceID: "ws-1"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
}
