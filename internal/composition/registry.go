package composition

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/apierr"
	"github.com/docuforge/ragcore/internal/auth"
	"github.com/docuforge/ragcore/internal/chunk"
	"github.com/docuforge/ragcore/internal/document"
	"github.com/docuforge/ragcore/internal/embedding"
	"github.com/docuforge/ragcore/internal/ingest"
	"github.com/docuforge/ragcore/internal/jobqueue"
	"github.com/docuforge/ragcore/internal/llmclient"
	"github.com/docuforge/ragcore/internal/rag"
	rawlocal "github.com/docuforge/ragcore/internal/rawstorage/local"
	"github.com/docuforge/ragcore/internal/rawstorage/s3"
	"github.com/docuforge/ragcore/internal/repository/postgres"
	"github.com/docuforge/ragcore/internal/repository/sqlite"
	vectorlocal "github.com/docuforge/ragcore/internal/vectorstore/local"
	"github.com/docuforge/ragcore/internal/vectorstore/qdrant"
	"github.com/docuforge/ragcore/internal/workspace"
)

// Registry holds every constructed adapter and service, along with
// the cleanup hooks main() runs at shutdown.
type Registry struct {
	Repo    adapter.Repository
	Raw     adapter.RawStorage
	Vectors adapter.VectorStore
	Embed   adapter.Embedder
	LLM     adapter.LLMClient
	Auth    auth.Verifier

	Workspace *workspace.Service
	Document  *document.Service
	RAG       *rag.Engine
	Queue     *jobqueue.Queue

	closers []func() error
}

// Close runs every registered cleanup hook, in reverse build order.
func (r *Registry) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Build selects and constructs every adapter per the configured
// environment, then assembles the domain services on top of them.
// Precedence per seam: a real backend is used whenever its
// configuration is present; otherwise the service falls back to a
// local, dependency-free implementation so the whole stack still runs
// on a bare workstation.
func Build(ctx context.Context, cfg Config) (*Registry, error) {
	reg := &Registry{}

	repo, closeRepo, err := buildRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	reg.Repo = repo
	if closeRepo != nil {
		reg.closers = append(reg.closers, closeRepo)
	}

	raw, err := buildRawStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}
	reg.Raw = raw

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	reg.Embed = embedder

	vectors, closeVectors, err := buildVectorStore(ctx, cfg, embedder.Dim())
	if err != nil {
		return nil, err
	}
	reg.Vectors = vectors
	if closeVectors != nil {
		reg.closers = append(reg.closers, closeVectors)
	}

	reg.LLM = buildLLMClient(cfg)
	reg.Auth = buildVerifier(cfg)

	splitter, err := chunk.New(cfg.ChunkSize, cfg.ChunkOverlap, cfg.EmbeddingModel)
	if err != nil {
		return nil, apierr.Wrap(apierr.Internal, "build chunk splitter", err)
	}

	pipeline := ingest.New(repo, raw, vectors, embedder, splitter, ingest.Config{})

	reg.Queue = jobqueue.New(cfg.IngestQueueCap, cfg.IngestWorkers)
	reg.Workspace = workspace.New(repo, raw, vectors, reg.Queue)
	reg.Document = document.New(repo, raw, vectors, pipeline, reg.Queue)
	reg.RAG = rag.New(repo, vectors, embedder, reg.LLM, rag.Config{
		TopK:     cfg.RAGTopKDefault,
		HistoryN: cfg.RAGHistoryN,
		Model:    cfg.LLMModel,
	})

	return reg, nil
}

func buildRepository(ctx context.Context, cfg Config) (adapter.Repository, func() error, error) {
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, apierr.Wrap(apierr.Permanent, "connect postgres", err)
		}
		slog.Info("composition: repository backend selected", "backend", "postgres")
		return postgres.New(pool), func() error { pool.Close(); return nil }, nil
	}

	repo, err := sqlite.New(cfg.SQLiteDir)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("composition: repository backend selected", "backend", "sqlite")
	return repo, nil, nil
}

func buildRawStorage(ctx context.Context, cfg Config) (adapter.RawStorage, error) {
	if cfg.MinioEndpoint != "" {
		store, err := s3.New(ctx, s3.Config{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("composition: raw storage backend selected", "backend", "minio")
		return store, nil
	}

	store, err := rawlocal.New(cfg.LocalBlobDir)
	if err != nil {
		return nil, err
	}
	slog.Info("composition: raw storage backend selected", "backend", "local")
	return store, nil
}

func buildEmbedder(cfg Config) (adapter.Embedder, error) {
	if cfg.OpenAIAPIKey != "" {
		embedder, err := embedding.NewOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
		if err != nil {
			return nil, err
		}
		slog.Info("composition: embedder backend selected", "backend", "openai", "model", cfg.EmbeddingModel)
		return embedder, nil
	}

	slog.Info("composition: embedder backend selected", "backend", "local")
	return embedding.NewLocalEmbedder(cfg.LocalEmbedDim), nil
}

// buildVectorStore wires Qdrant when either QDRANT_URL or
// QDRANT_HOST/QDRANT_PORT is set, otherwise falls back to the local
// JSON-backed store. An explicitly configured vector size that
// disagrees with the embedder's dimension is startup-fatal, before
// EnsureCollection ever runs.
func buildVectorStore(ctx context.Context, cfg Config, embedDim int) (adapter.VectorStore, func() error, error) {
	addr := cfg.QdrantURL
	if addr == "" && cfg.QdrantHost != "" {
		addr = fmt.Sprintf("%s:%s", cfg.QdrantHost, cfg.QdrantPort)
	}

	if cfg.QdrantVectorSize != 0 && cfg.QdrantVectorSize != embedDim {
		return nil, nil, apierr.Wrap(apierr.Permanent,
			fmt.Sprintf("configured vector size %d does not match embedder dimension %d",
				cfg.QdrantVectorSize, embedDim), nil)
	}
	dim := embedDim

	if addr != "" {
		store, err := qdrant.New(addr, cfg.QdrantCollection)
		if err != nil {
			return nil, nil, err
		}
		if err := store.EnsureCollection(ctx, dim, cfg.QdrantDistance); err != nil {
			return nil, nil, err
		}
		slog.Info("composition: vector store backend selected", "backend", "qdrant", "addr", addr)
		return store, store.Close, nil
	}

	store, err := vectorlocal.New(cfg.LocalVectorPath)
	if err != nil {
		return nil, nil, err
	}
	if err := store.EnsureCollection(ctx, dim, cfg.QdrantDistance); err != nil {
		return nil, nil, err
	}
	slog.Info("composition: vector store backend selected", "backend", "local")
	return store, nil, nil
}

func buildLLMClient(cfg Config) adapter.LLMClient {
	if cfg.OpenAIAPIKey != "" {
		slog.Info("composition: llm backend selected", "backend", "openai", "model", cfg.LLMModel)
		return llmclient.NewOpenAIClient(cfg.OpenAIAPIKey)
	}
	if cfg.OllamaURL != "" {
		slog.Info("composition: llm backend selected", "backend", "ollama", "model", cfg.LLMModel)
		return llmclient.NewOllamaClient(cfg.OllamaURL, cfg.LLMModel)
	}
	slog.Info("composition: llm backend selected", "backend", "stub")
	return llmclient.NewStubClient()
}

func buildVerifier(cfg Config) auth.Verifier {
	if cfg.JWTSecret != "" {
		slog.Info("composition: auth backend selected", "backend", "jwt")
		return auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiry)
	}
	slog.Info("composition: auth backend selected", "backend", "allow-all")
	return auth.AllowAll()
}
