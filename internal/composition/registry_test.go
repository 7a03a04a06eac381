package composition

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docuforge/ragcore/internal/apierr"
)

func localConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	return Config{
		SQLiteDir:       filepath.Join(dir, "db"),
		LocalBlobDir:    filepath.Join(dir, "blobs"),
		LocalVectorPath: filepath.Join(dir, "vectors.json"),
		LocalEmbedDim:   64,
		ChunkSize:       200,
		ChunkOverlap:    20,
	}
}

func TestBuildSelectsLocalFallbacks(t *testing.T) {
	reg, err := Build(context.Background(), localConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reg.Close() })

	require.NotNil(t, reg.Repo)
	require.NotNil(t, reg.Raw)
	require.NotNil(t, reg.Vectors)
	require.NotNil(t, reg.Embed)
	require.NotNil(t, reg.LLM)
	require.Equal(t, 64, reg.Embed.Dim())
	require.NotNil(t, reg.Workspace)
	require.NotNil(t, reg.Document)
	require.NotNil(t, reg.RAG)
	require.NotNil(t, reg.Queue)
}

func TestBuildFailsOnVectorSizeMismatch(t *testing.T) {
	cfg := localConfig(t)
	cfg.QdrantVectorSize = 32

	_, err := Build(context.Background(), cfg)
	require.Error(t, err)
	require.Equal(t, apierr.Permanent, apierr.ClassOf(err))
}
