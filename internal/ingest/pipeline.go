// Package ingest runs the asynchronous document-processing pipeline:
// extract, detect language, chunk, embed, index, commit. It
// generalizes the teacher's Service.ingest method (split + AddDocuments
// in one langchaingo call) into the full per-stage sequence with its
// own DocumentEvent tracking, since this repo's VectorStore adapters
// don't do embedding internally the way langchaingo's pgvector store
// does.
package ingest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/apierr"
	"github.com/docuforge/ragcore/internal/chunk"
	"github.com/docuforge/ragcore/internal/domain"
	"github.com/docuforge/ragcore/internal/extract"
	"github.com/docuforge/ragcore/internal/lang"
)

// Config controls pipeline behavior.
type Config struct {
	EmbedBatchSize int
	EmbedRetries   int
	EmbedBaseDelay time.Duration
	SnippetRunes   int
}

func (c Config) withDefaults() Config {
	if c.EmbedBatchSize <= 0 {
		c.EmbedBatchSize = 64
	}
	if c.EmbedRetries <= 0 {
		c.EmbedRetries = 4
	}
	if c.EmbedBaseDelay <= 0 {
		c.EmbedBaseDelay = 250 * time.Millisecond
	}
	if c.SnippetRunes <= 0 {
		c.SnippetRunes = 240
	}
	return c
}

// Pipeline wires the adapters needed to carry a Document from
// PENDING through SUCCESS or FAILED.
type Pipeline struct {
	repo     adapter.Repository
	raw      adapter.RawStorage
	vectors  adapter.VectorStore
	embedder adapter.Embedder
	splitter *chunk.Splitter
	cfg      Config
}

// New builds a Pipeline.
func New(repo adapter.Repository, raw adapter.RawStorage, vectors adapter.VectorStore, embedder adapter.Embedder, splitter *chunk.Splitter, cfg Config) *Pipeline {
	return &Pipeline{repo: repo, raw: raw, vectors: vectors, embedder: embedder, splitter: splitter, cfg: cfg.withDefaults()}
}

// Run executes every stage for documentID, leaving the Document in
// either SUCCESS or FAILED status. It never returns an error to the
// caller — failures are recorded on the Document row itself, matching
// the teacher's worker loop which logs and moves on rather than
// propagating to a caller nobody is blocked on.
func (p *Pipeline) Run(ctx context.Context, documentID string) {
	doc, err := p.repo.GetDocument(ctx, documentID)
	if err != nil {
		slog.Error("ingest: load document failed", "document_id", documentID, "error", err)
		return
	}

	if err := p.repo.UpdateDocumentStatus(ctx, doc.ID, domain.DocumentProcessing, nil); err != nil {
		slog.Error("ingest: mark processing failed", "document_id", doc.ID, "error", err)
		return
	}

	if err := p.run(ctx, doc); err != nil {
		msg := err.Error()
		if uerr := p.repo.UpdateDocumentStatus(ctx, doc.ID, domain.DocumentFailed, &msg); uerr != nil {
			slog.Error("ingest: mark failed failed", "document_id", doc.ID, "error", uerr)
		}
		slog.Error("ingest: pipeline failed", "document_id", doc.ID, "error", err)
		return
	}

	slog.Info("ingest: document committed", "document_id", doc.ID)
}

func (p *Pipeline) run(ctx context.Context, doc *domain.Document) error {
	rc, size, err := p.raw.Get(ctx, doc.RawStoragePath)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "read raw blob", err)
	}
	defer rc.Close()

	data := make([]byte, size)
	if _, err := io.ReadFull(rc, data); err != nil {
		return apierr.Wrap(apierr.Transient, "buffer raw blob", err)
	}

	// Stage: EXTRACTING
	result, err := p.stageExtract(ctx, doc, data)
	if err != nil {
		return err
	}

	// Stage: LANG_DETECT (non-fatal)
	detected := p.stageLangDetect(ctx, doc, result)

	// Stage: CHUNKING
	chunks, err := p.stageChunk(ctx, doc, result)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return apierr.Validationf("document produced no chunks")
	}

	// Stage: CLASSIFICATION — no classifier is wired, so the stage is
	// recorded as skipped rather than silently absent.
	p.recordSkippedStage(ctx, doc.ID, domain.StageClassify)

	// Stage: EMBEDDING (+ index)
	if err := p.stageEmbedAndIndex(ctx, doc, chunks); err != nil {
		return err
	}

	// Commit
	now := time.Now()
	doc.PageCount = result.PageCount
	doc.Author = result.Author
	doc.DetectedLanguage = &detected
	doc.IngestedAt = &now
	doc.Status = domain.DocumentSuccess
	if result.CreationDate != nil {
		if t, ok := parseLooseTime(*result.CreationDate); ok {
			doc.CreationDate = &t
		}
	}
	if err := p.repo.CommitDocument(ctx, doc); err != nil {
		return apierr.Wrap(apierr.Transient, "commit document", err)
	}
	return nil
}

func (p *Pipeline) withStageEvent(ctx context.Context, documentID string, stage domain.Stage, fn func() error) error {
	started := time.Now()
	_ = p.repo.UpsertStageEvent(ctx, &domain.DocumentEvent{
		DocumentID: documentID, Stage: stage, Status: domain.DocumentProcessing, StartedAt: started,
	})

	err := fn()

	finished := time.Now()
	durMS := finished.Sub(started).Milliseconds()
	status := domain.DocumentSuccess
	if err != nil {
		status = domain.DocumentFailed
	}
	_ = p.repo.UpsertStageEvent(ctx, &domain.DocumentEvent{
		DocumentID: documentID, Stage: stage, Status: status,
		StartedAt: started, FinishedAt: &finished, DurationMS: &durMS,
	})
	return err
}

func (p *Pipeline) recordSkippedStage(ctx context.Context, documentID string, stage domain.Stage) {
	now := time.Now()
	var zero int64
	_ = p.repo.UpsertStageEvent(ctx, &domain.DocumentEvent{
		DocumentID: documentID, Stage: stage, Status: domain.DocumentSkipped,
		StartedAt: now, FinishedAt: &now, DurationMS: &zero,
	})
}

func (p *Pipeline) stageExtract(ctx context.Context, doc *domain.Document, data []byte) (*adapter.ExtractResult, error) {
	var result *adapter.ExtractResult
	err := p.withStageEvent(ctx, doc.ID, domain.StageExtracting, func() error {
		mime, res, err := extract.Extract(ctx, data)
		if err != nil {
			if e, ok := apierr.As(err); ok && e.Kind == apierr.UnsupportedMedia {
				_ = p.raw.Delete(ctx, doc.RawStoragePath)
			}
			return err
		}
		doc.MediaType = mime
		result = res
		return nil
	})
	return result, err
}

func (p *Pipeline) stageLangDetect(ctx context.Context, doc *domain.Document, result *adapter.ExtractResult) string {
	detected := "en"
	_ = p.withStageEvent(ctx, doc.ID, domain.StageLangDetect, func() error {
		var sample string
		for _, page := range result.Pages {
			sample += page.Text
			if len(sample) > 2000 {
				break
			}
		}
		detected = lang.Detect(sample)
		return nil
	})
	return detected
}

func (p *Pipeline) stageChunk(ctx context.Context, doc *domain.Document, result *adapter.ExtractResult) ([]chunk.Chunk, error) {
	var chunks []chunk.Chunk
	err := p.withStageEvent(ctx, doc.ID, domain.StageChunking, func() error {
		cs, err := p.splitter.Split(ctx, result.Pages)
		if err != nil {
			return err
		}
		chunks = cs
		return nil
	})
	return chunks, err
}

func (p *Pipeline) stageEmbedAndIndex(ctx context.Context, doc *domain.Document, chunks []chunk.Chunk) error {
	return p.withStageEvent(ctx, doc.ID, domain.StageEmbedding, func() error {
		for start := 0; start < len(chunks); start += p.cfg.EmbedBatchSize {
			end := min(start+p.cfg.EmbedBatchSize, len(chunks))
			batch := chunks[start:end]

			vectors, err := p.embedWithRetry(ctx, textsOf(batch))
			if err != nil {
				return err
			}

			points := make([]adapter.VectorPoint, len(batch))
			for i, c := range batch {
				points[i] = adapter.VectorPoint{
					ID:     chunkPointID(doc.ID, start+i),
					Vector: vectors[i],
					Payload: domain.VectorPayload{
						WorkspaceID:  doc.WorkspaceID,
						DocumentID:   doc.ID,
						DocumentName: doc.DocumentName,
						PageStart:    c.PageStart,
						PageEnd:      c.PageEnd,
						Snippet:      snippet(c.Text, p.cfg.SnippetRunes),
					},
				}
			}
			if err := p.vectors.Upsert(ctx, points); err != nil {
				return apierr.Wrap(apierr.Transient, "upsert vector batch", err)
			}
		}
		return nil
	})
}

// embedWithRetry retries the embedding batch call with bounded
// exponential backoff — no retry library appears anywhere in the
// example pack's dependency graph, so this is a small hand-rolled loop
// rather than a pulled-in dependency like hashicorp/go-retryablehttp.
func (p *Pipeline) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	delay := p.cfg.EmbedBaseDelay
	for attempt := 0; attempt < p.cfg.EmbedRetries; attempt++ {
		vectors, err := p.embedder.EmbedDocuments(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !apierr.IsTransient(err) {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, apierr.Wrap(apierr.Transient, "embedding retries exhausted", lastErr)
}

// chunkPointID derives a deterministic vector-store point id from
// (document_id, chunk_index) so re-running ingestion upserts the same
// points instead of duplicating them.
func chunkPointID(documentID string, index int) string {
	name := fmt.Sprintf("%s/%d", documentID, index)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func textsOf(chunks []chunk.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func snippet(text string, n int) string {
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n])
}

func parseLooseTime(s string) (time.Time, bool) {
	layouts := []string{time.RFC3339, "2006-01-02", "D:20060102150405"}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ComputeSHA256 hashes raw upload bytes for duplicate-upload detection.
func ComputeSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}
