package llmclient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docuforge/ragcore/internal/adapter"
)

func TestStubClientExtractsQuestionFromPrompt(t *testing.T) {
	c := NewStubClient()
	answer, err := c.Generate(context.Background(), "Context:\n...\n\nQuestion: what time is it?", adapter.GenerateParams{})
	require.NoError(t, err)
	require.Contains(t, answer, "what time is it?")
}

func TestStubClientHandlesPromptWithoutQuestionMarker(t *testing.T) {
	c := NewStubClient()
	answer, err := c.Generate(context.Background(), "no marker here", adapter.GenerateParams{})
	require.NoError(t, err)
	require.NotEmpty(t, answer)
}
