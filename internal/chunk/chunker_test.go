package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docuforge/ragcore/internal/adapter"
)

func TestNewFallsBackToDefaultEncoding(t *testing.T) {
	s, err := New(0, -1, "")
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestSplitProducesNonEmptyChunksWithPageRange(t *testing.T) {
	s, err := New(40, 5, "gpt-3.5-turbo")
	require.NoError(t, err)

	pages := []adapter.Page{
		{Number: 1, Text: strings.Repeat("alpha beta gamma delta ", 10)},
		{Number: 2, Text: strings.Repeat("epsilon zeta eta theta ", 10)},
	}

	chunks, err := s.Split(context.Background(), pages)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		require.NotEmpty(t, strings.TrimSpace(c.Text))
		require.GreaterOrEqual(t, c.PageEnd, c.PageStart)
		require.Greater(t, c.TokenCount, 0)
	}
}

func TestSplitShortPagesKeepOneChunkPerPage(t *testing.T) {
	s, err := New(1000, 150, "")
	require.NoError(t, err)

	pages := []adapter.Page{
		{Number: 1, Text: "alpha\n"},
		{Number: 2, Text: "beta\n"},
		{Number: 3, Text: "gamma\n"},
	}

	chunks, err := s.Split(context.Background(), pages)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	for i, want := range []string{"alpha", "beta", "gamma"} {
		require.Contains(t, chunks[i].Text, want)
		require.Equal(t, i+1, chunks[i].PageStart)
		require.Equal(t, i+1, chunks[i].PageEnd)
	}
}

func TestSplitEmptyPagesYieldsNoChunks(t *testing.T) {
	s, err := New(100, 10, "")
	require.NoError(t, err)

	chunks, err := s.Split(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestCountTokensIsStable(t *testing.T) {
	s, err := New(100, 10, "")
	require.NoError(t, err)

	a := s.CountTokens("hello world")
	b := s.CountTokens("hello world")
	require.Equal(t, a, b)
	require.Greater(t, a, 0)
}
