package workspace

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/adapter/adaptertest"
	"github.com/docuforge/ragcore/internal/apierr"
	"github.com/docuforge/ragcore/internal/domain"
	"github.com/docuforge/ragcore/internal/jobqueue"
)

func newTestService(t *testing.T) (*Service, *adaptertest.Repository, *adaptertest.RawStorage, *adaptertest.VectorStore) {
	t.Helper()
	repo := adaptertest.NewRepository()
	raw := adaptertest.NewRawStorage()
	vectors := adaptertest.NewVectorStore()
	queue := jobqueue.New(16, 2)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = queue.Run(ctx) }()
	return New(repo, raw, vectors, queue), repo, raw, vectors
}

func TestCreateRejectsEmptyName(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	_, err := svc.Create(context.Background(), "")
	require.Equal(t, apierr.Validation, apierr.ClassOf(err))
}

func TestCreateAndGet(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	ws, err := svc.Create(ctx, "acme")
	require.NoError(t, err)
	require.NotEmpty(t, ws.ID)

	got, err := svc.Get(ctx, ws.ID)
	require.NoError(t, err)
	require.Equal(t, "acme", got.Name)
}

func TestListReturnsAllWorkspaces(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, "one")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "two")
	require.NoError(t, err)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
}

func TestDeleteCascadesBlobsAndVectors(t *testing.T) {
	svc, _, raw, vectors := newTestService(t)
	ctx := context.Background()

	ws, err := svc.Create(ctx, "acme")
	require.NoError(t, err)

	require.NoError(t, raw.Put(ctx, ws.ID+"/doc1-file.pdf", bytes.NewReader([]byte("data")), 4))
	require.NoError(t, vectors.Upsert(ctx, []adapter.VectorPoint{
		{ID: "p1", Vector: []float32{1, 2}, Payload: domain.VectorPayload{WorkspaceID: ws.ID}},
	}))
	require.Equal(t, 1, vectors.Count())

	require.NoError(t, svc.Delete(ctx, ws.ID))

	// Delete returns before the cascade runs; poll until it lands.
	require.Eventually(t, func() bool {
		exists, err := raw.Exists(ctx, ws.ID+"/doc1-file.pdf")
		if err != nil || exists || vectors.Count() != 0 {
			return false
		}
		_, err = svc.Get(ctx, ws.ID)
		return apierr.ClassOf(err) == apierr.NotFound
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDeleteUnknownWorkspaceReturnsNotFound(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	err := svc.Delete(context.Background(), "missing")
	require.Equal(t, apierr.NotFound, apierr.ClassOf(err))
}

func TestMessagesRejectsSessionFromOtherWorkspace(t *testing.T) {
	svc, repo, _, _ := newTestService(t)
	ctx := context.Background()

	wsA, err := svc.Create(ctx, "a")
	require.NoError(t, err)
	wsB, err := svc.Create(ctx, "b")
	require.NoError(t, err)

	session := &domain.ChatSession{ID: "sess-1", WorkspaceID: wsB.ID, CreatedAt: time.Now()}
	require.NoError(t, repo.CreateSession(ctx, session))

	_, err = svc.Messages(ctx, wsA.ID, session.ID)
	require.Equal(t, apierr.NotFound, apierr.ClassOf(err))
}
