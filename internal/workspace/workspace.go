// Package workspace generalizes the teacher's tenant.Service into the
// isolation-boundary and session manager for this system: a
// Workspace replaces Organization as the scoping entity, and this
// layer additionally owns chat session/message lifecycle and cascade
// delete, which the teacher never needed since it had no document or
// chat entities tied to an org.
package workspace

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/apierr"
	"github.com/docuforge/ragcore/internal/domain"
	"github.com/docuforge/ragcore/internal/jobqueue"
)

// Cascade-delete retry policy: each background attempt re-runs every
// remaining step, so a partial failure converges across attempts.
const (
	cascadeAttempts  = 3
	cascadeBaseDelay = time.Second
)

// Service manages workspaces and the chat sessions within them.
type Service struct {
	repo    adapter.Repository
	raw     adapter.RawStorage
	vectors adapter.VectorStore
	queue   *jobqueue.Queue
}

// New builds a Service.
func New(repo adapter.Repository, raw adapter.RawStorage, vectors adapter.VectorStore, queue *jobqueue.Queue) *Service {
	return &Service{repo: repo, raw: raw, vectors: vectors, queue: queue}
}

// Create registers a new workspace.
func (s *Service) Create(ctx context.Context, name string) (*domain.Workspace, error) {
	if name == "" {
		return nil, apierr.Validationf("workspace name is required")
	}
	ws := &domain.Workspace{ID: uuid.NewString(), Name: name, CreatedAt: time.Now()}
	if err := s.repo.CreateWorkspace(ctx, ws); err != nil {
		return nil, err
	}
	return ws, nil
}

// Get loads a workspace by id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Workspace, error) {
	return s.repo.GetWorkspace(ctx, id)
}

// List returns every workspace.
func (s *Service) List(ctx context.Context) ([]*domain.Workspace, error) {
	return s.repo.ListWorkspaces(ctx)
}

// Delete verifies the workspace exists, then hands the cascade off to
// the background job queue and returns immediately. The cascade runs
// vectors first, blobs second, metadata rows last — the workspace row
// is the final delete so a failed attempt still has a handle to retry
// against.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.GetWorkspace(ctx, id); err != nil {
		return err
	}

	accepted := s.queue.Submit(jobqueue.Job{
		ID: "workspace-delete-" + id,
		Fn: func(ctx context.Context) { s.cascadeDelete(ctx, id) },
	})
	if !accepted {
		return apierr.Transientf("cleanup queue saturated, retry later")
	}
	return nil
}

func (s *Service) cascadeDelete(ctx context.Context, id string) {
	var err error
	delay := cascadeBaseDelay
	for attempt := 0; attempt < cascadeAttempts; attempt++ {
		if err = s.cascadeOnce(ctx, id); err == nil {
			return
		}
		slog.Warn("workspace: cascade delete attempt failed",
			"workspace_id", id, "attempt", attempt+1, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
	slog.Error("workspace: cascade delete gave up", "workspace_id", id, "error", err)
}

func (s *Service) cascadeOnce(ctx context.Context, id string) error {
	if err := s.vectors.DeleteByFilter(ctx, adapter.SearchFilter{WorkspaceID: id}); err != nil {
		return apierr.Wrap(apierr.Transient, "delete workspace vectors", err)
	}
	if err := s.raw.DeletePrefix(ctx, id+"/"); err != nil {
		return apierr.Wrap(apierr.Transient, "delete workspace blobs", err)
	}
	if err := s.repo.DeleteSessionsByWorkspace(ctx, id); err != nil {
		return apierr.Wrap(apierr.Transient, "delete workspace sessions", err)
	}
	return s.repo.DeleteWorkspace(ctx, id)
}

// ListSessions returns every chat session in a workspace.
func (s *Service) ListSessions(ctx context.Context, workspaceID string) ([]*domain.ChatSession, error) {
	return s.repo.ListSessionsByWorkspace(ctx, workspaceID)
}

// Messages returns every message of a session, verifying it belongs
// to the given workspace first.
func (s *Service) Messages(ctx context.Context, workspaceID, sessionID string) ([]*domain.ChatMessage, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.WorkspaceID != workspaceID {
		return nil, apierr.NotFoundf("session not found in workspace: %s", sessionID)
	}
	return s.repo.ListMessagesBySession(ctx, sessionID)
}
