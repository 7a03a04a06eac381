package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalEmbedderDimDefaultsWhenNonPositive(t *testing.T) {
	e := NewLocalEmbedder(0)
	require.Equal(t, 256, e.Dim())
}

func TestLocalEmbedderIsDeterministic(t *testing.T) {
	e := NewLocalEmbedder(64)
	ctx := context.Background()

	a, err := e.EmbedQuery(ctx, "the quick brown fox")
	require.NoError(t, err)
	b, err := e.EmbedQuery(ctx, "the quick brown fox")
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestLocalEmbedderProducesUnitVectors(t *testing.T) {
	e := NewLocalEmbedder(32)
	vec, err := e.EmbedQuery(context.Background(), "some non-empty document text")
	require.NoError(t, err)

	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	require.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-4)
}

func TestLocalEmbedderEmptyTextYieldsZeroVector(t *testing.T) {
	e := NewLocalEmbedder(16)
	vec, err := e.EmbedQuery(context.Background(), "")
	require.NoError(t, err)
	for _, v := range vec {
		require.Equal(t, float32(0), v)
	}
}

func TestLocalEmbedderEmbedDocumentsMatchesEmbedQuery(t *testing.T) {
	e := NewLocalEmbedder(32)
	ctx := context.Background()

	docs, err := e.EmbedDocuments(ctx, []string{"alpha beta"})
	require.NoError(t, err)
	query, err := e.EmbedQuery(ctx, "alpha beta")
	require.NoError(t, err)

	require.Equal(t, query, docs[0])
}
