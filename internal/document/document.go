// Package document generalizes the teacher's document.Service: upload
// persists raw bytes and a metadata row, then enqueues an ingest job
// instead of calling langchaingo's splitter/AddDocuments synchronously
// the way the teacher's worker did, since this repo's pipeline has its
// own multi-stage shape (see internal/ingest).
package document

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/apierr"
	"github.com/docuforge/ragcore/internal/domain"
	"github.com/docuforge/ragcore/internal/extract"
	"github.com/docuforge/ragcore/internal/ingest"
	"github.com/docuforge/ragcore/internal/jobqueue"
)

// MaxUploadBytes bounds a single upload; enforced by the HTTP layer
// too, but checked again here for any non-HTTP caller.
const MaxUploadBytes = 64 << 20

// queueWaitTimeout bounds how long an upload request waits for a free
// ingestion slot before giving up.
const queueWaitTimeout = 2 * time.Second

// Service manages document upload, listing, status, download, and
// deletion.
type Service struct {
	repo     adapter.Repository
	raw      adapter.RawStorage
	vectors  adapter.VectorStore
	pipeline *ingest.Pipeline
	queue    *jobqueue.Queue
}

// New builds a Service.
func New(repo adapter.Repository, raw adapter.RawStorage, vectors adapter.VectorStore, pipeline *ingest.Pipeline, queue *jobqueue.Queue) *Service {
	return &Service{repo: repo, raw: raw, vectors: vectors, pipeline: pipeline, queue: queue}
}

// UploadRequest carries the raw bytes of one file upload.
type UploadRequest struct {
	WorkspaceID string
	FileName    string
	Data        []byte
}

// Upload persists the blob and a PENDING Document row, then enqueues
// ingestion. It returns immediately so the HTTP caller isn't blocked
// on the pipeline, matching the teacher's non-blocking Upload shape.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*domain.Document, error) {
	if len(req.Data) == 0 {
		return nil, apierr.Validationf("empty upload")
	}
	if len(req.Data) > MaxUploadBytes {
		return nil, apierr.PayloadTooLargef("upload exceeds %d bytes", MaxUploadBytes)
	}
	if _, err := s.repo.GetWorkspace(ctx, req.WorkspaceID); err != nil {
		return nil, err
	}

	// Reject unsupported media before persisting anything: no blob, no
	// metadata row. MIME comes from the magic bytes, not the filename.
	mime := extract.DetectMIME(req.Data)
	if _, err := extract.New(mime); err != nil {
		return nil, err
	}

	docID := uuid.NewString()
	path := req.WorkspaceID + "/" + docID + "-" + sanitizeName(req.FileName)

	if err := s.raw.Put(ctx, path, bytes.NewReader(req.Data), int64(len(req.Data))); err != nil {
		return nil, err
	}

	doc := &domain.Document{
		ID:             docID,
		WorkspaceID:    req.WorkspaceID,
		DocumentName:   req.FileName,
		MediaType:      mime,
		SHA256:         ingest.ComputeSHA256(req.Data),
		RawStoragePath: path,
		SizeBytes:      int64(len(req.Data)),
		Status:         domain.DocumentPending,
	}
	if err := s.repo.CreateDocument(ctx, doc); err != nil {
		_ = s.raw.Delete(ctx, path)
		return nil, err
	}

	if err := s.repo.UpdateDocumentStatus(ctx, doc.ID, domain.DocumentQueued, nil); err != nil {
		slog.Error("document: mark queued failed", "document_id", doc.ID, "error", err)
	} else {
		doc.Status = domain.DocumentQueued
	}

	// Block briefly for a queue slot; an oversubscribed queue is
	// backpressure on the producer, surfaced as 503 once the wait
	// exceeds the request-side deadline.
	waitCtx, cancel := context.WithTimeout(ctx, queueWaitTimeout)
	defer cancel()
	accepted := s.queue.SubmitWait(waitCtx, jobqueue.Job{
		ID: doc.ID,
		Fn: func(ctx context.Context) {
			runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
			defer cancel()
			s.pipeline.Run(runCtx, doc.ID)
		},
	})
	if !accepted {
		_ = s.raw.Delete(ctx, path)
		_ = s.repo.DeleteDocument(ctx, doc.ID)
		return nil, apierr.Transientf("ingestion queue saturated, retry later")
	}

	return doc, nil
}

// Get loads one document, verifying it belongs to workspaceID.
func (s *Service) Get(ctx context.Context, workspaceID, documentID string) (*domain.Document, error) {
	doc, err := s.repo.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.WorkspaceID != workspaceID {
		return nil, apierr.NotFoundf("document not found in workspace: %s", documentID)
	}
	return doc, nil
}

// List returns every document in a workspace.
func (s *Service) List(ctx context.Context, workspaceID string) ([]*domain.Document, error) {
	return s.repo.ListDocumentsByWorkspace(ctx, workspaceID)
}

// FindByContent locates an already-uploaded document with the same
// bytes, letting callers skip a re-upload they know is a duplicate.
func (s *Service) FindByContent(ctx context.Context, workspaceID string, data []byte) (*domain.Document, error) {
	return s.repo.FindDocumentBySHA256(ctx, workspaceID, ingest.ComputeSHA256(data))
}

// StageEvents returns the pipeline stage history for one document.
func (s *Service) StageEvents(ctx context.Context, documentID string) ([]*domain.DocumentEvent, error) {
	return s.repo.ListStageEvents(ctx, documentID)
}

// Download reads a document's raw bytes into memory and returns them
// together with its metadata.
func (s *Service) Download(ctx context.Context, workspaceID, documentID string) (*domain.Document, []byte, error) {
	doc, err := s.Get(ctx, workspaceID, documentID)
	if err != nil {
		return nil, nil, err
	}
	rc, size, err := s.raw.Get(ctx, doc.RawStoragePath)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()

	buf := make([]byte, size)
	if _, err := io.ReadFull(rc, buf); err != nil {
		return nil, nil, apierr.Wrap(apierr.Transient, "read document blob", err)
	}
	return doc, buf, nil
}

// Delete removes a document's blob, vectors, and metadata row.
func (s *Service) Delete(ctx context.Context, workspaceID, documentID string) error {
	doc, err := s.Get(ctx, workspaceID, documentID)
	if err != nil {
		return err
	}
	if err := s.raw.Delete(ctx, doc.RawStoragePath); err != nil {
		return err
	}
	if err := s.vectors.DeleteByFilter(ctx, adapter.SearchFilter{WorkspaceID: workspaceID, DocumentID: documentID}); err != nil {
		return err
	}
	return s.repo.DeleteDocument(ctx, documentID)
}

// sanitizeName strips path separators and other characters unsafe in
// a blob key, keeping the raw storage path layout predictable and
// free of traversal surprises.
func sanitizeName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "upload"
	}
	return sb.String()
}
