// Package adapter defines the pluggable-backend contracts of
// RawStorage, VectorStore, Repository, Embedder,
// LLMClient, and TextExtractor. Every concrete backend in
// internal/rawstorage, internal/vectorstore, internal/repository,
// internal/embedding, internal/llmclient, and internal/extract
// implements one of these against the domain types.
package adapter

import (
	"context"
	"io"

	"github.com/docuforge/ragcore/internal/domain"
)

// RawStorage is a blob store keyed by opaque paths of the form
// "{workspace_id}/{document_id}-{sanitized_name}". Put is atomic from
// the reader's perspective: no partial object is ever visible to Get.
type RawStorage interface {
	Put(ctx context.Context, path string, data io.Reader, size int64) error
	Get(ctx context.Context, path string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, path string) error
	DeletePrefix(ctx context.Context, prefix string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// VectorPoint is one embedding plus its retrieval payload, ready for
// upsert into a VectorStore.
type VectorPoint struct {
	ID      string
	Vector  []float32
	Payload domain.VectorPayload
}

// ScoredPoint is one VectorStore search result.
type ScoredPoint struct {
	Score   float32
	Payload domain.VectorPayload
}

// SearchFilter expresses equality constraints a VectorStore search
// must honor. DocumentID is optional; WorkspaceID is always required.
type SearchFilter struct {
	WorkspaceID string
	DocumentID  string
}

// VectorStore is an ANN index supporting filtered similarity search.
// Dimension and distance metric are fixed at collection creation.
type VectorStore interface {
	EnsureCollection(ctx context.Context, dim int, distance string) error
	Upsert(ctx context.Context, points []VectorPoint) error
	Search(ctx context.Context, vector []float32, topK int, filter SearchFilter) ([]ScoredPoint, error)
	DeleteByFilter(ctx context.Context, filter SearchFilter) error
}

// Repository is the transactional metadata store covering every
// entity. WithTx scopes a unit of work: callers that need
// several writes to commit or roll back together call WithTx and
// issue all of their calls against the Repository it yields.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Repository) error) error

	CreateWorkspace(ctx context.Context, ws *domain.Workspace) error
	GetWorkspace(ctx context.Context, id string) (*domain.Workspace, error)
	ListWorkspaces(ctx context.Context) ([]*domain.Workspace, error)
	DeleteWorkspace(ctx context.Context, id string) error

	CreateDocument(ctx context.Context, doc *domain.Document) error
	UpdateDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, errMsg *string) error
	CommitDocument(ctx context.Context, doc *domain.Document) error
	GetDocument(ctx context.Context, id string) (*domain.Document, error)
	FindDocumentBySHA256(ctx context.Context, workspaceID, sha256 string) (*domain.Document, error)
	ListDocumentsByWorkspace(ctx context.Context, workspaceID string) ([]*domain.Document, error)
	CountDocumentsByWorkspace(ctx context.Context, workspaceID string) (int, error)
	DeleteDocument(ctx context.Context, id string) error

	UpsertStageEvent(ctx context.Context, ev *domain.DocumentEvent) error
	ListStageEvents(ctx context.Context, documentID string) ([]*domain.DocumentEvent, error)

	CreateSession(ctx context.Context, s *domain.ChatSession) error
	GetSession(ctx context.Context, id string) (*domain.ChatSession, error)
	ListSessionsByWorkspace(ctx context.Context, workspaceID string) ([]*domain.ChatSession, error)
	DeleteSessionsByWorkspace(ctx context.Context, workspaceID string) error

	CreateMessage(ctx context.Context, m *domain.ChatMessage) error
	ListMessagesBySession(ctx context.Context, sessionID string) ([]*domain.ChatMessage, error)
	RecentMessages(ctx context.Context, sessionID string, n int) ([]*domain.ChatMessage, error)

	CreateMessageSources(ctx context.Context, sources []*domain.ChatMessageSource) error
}

// Embedder turns text into fixed-dimension vectors. Implementations
// must be stateless and deterministic for a fixed model.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dim() int
}

// GenerateParams controls one LLMClient.Generate call.
type GenerateParams struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Stop        []string
}

// LLMClient turns a prompt into generated text. The call is blocking;
// timeouts and retries are the caller's responsibility (the RAG
// engine), not the client's.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerateParams) (string, error)
}

// Page is one page of extracted text.
type Page struct {
	Number int
	Text   string
}

// ExtractResult is what a TextExtractor returns for one document.
type ExtractResult struct {
	Pages        []Page
	Author       *string
	CreationDate *string
	PageCount    int
}

// TextExtractor turns raw document bytes into per-page text plus
// whatever metadata the format exposes.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte) (*ExtractResult, error)
}
