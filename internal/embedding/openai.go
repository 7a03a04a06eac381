// Package embedding provides adapter.Embedder implementations.
// OpenAIEmbedder wraps langchaingo's embeddings.Embedder so the rest
// of the code depends on the adapter.Embedder interface rather than
// the langchaingo type directly, adapted from the original single-model
// embedder this project grew out of.
package embedding

import (
	"context"

	"github.com/tmc/langchaingo/embeddings"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/sync/errgroup"

	"github.com/docuforge/ragcore/internal/apierr"
)

// dimByModel covers the OpenAI embedding models this service is
// configured to use. Extend when a new model is wired in.
var dimByModel = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIEmbedder wraps langchaingo's embeddings.EmbedderImpl.
type OpenAIEmbedder struct {
	inner *embeddings.EmbedderImpl
	model string
}

// NewOpenAIEmbedder creates an embedder backed by the given OpenAI
// embedding model via langchaingo.
func NewOpenAIEmbedder(apiKey, model string) (*OpenAIEmbedder, error) {
	if model == "" {
		model = "text-embedding-3-small"
	}
	llm, err := lcopenai.New(
		lcopenai.WithToken(apiKey),
		lcopenai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, apierr.Wrap(apierr.Permanent, "construct openai embedding client", err)
	}

	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, apierr.Wrap(apierr.Permanent, "construct langchaingo embedder", err)
	}

	return &OpenAIEmbedder{inner: embedder, model: model}, nil
}

// apiBatchSize caps how many texts go into one API call; larger
// inputs are split and embedded concurrently.
const apiBatchSize = 128

// maxConcurrentBatches bounds in-flight embedding calls so a huge
// document doesn't stampede the API.
const maxConcurrentBatches = 4

// EmbedDocuments embeds a batch of chunk texts, fanning large batches
// out across bounded concurrent API calls and reassembling the
// results in input order.
func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) <= apiBatchSize {
		vecs, err := e.inner.EmbedDocuments(ctx, texts)
		if err != nil {
			return nil, apierr.Wrap(apierr.Transient, "embed documents", err)
		}
		return vecs, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentBatches)
	for start := 0; start < len(texts); start += apiBatchSize {
		start := start
		end := min(start+apiBatchSize, len(texts))
		g.Go(func() error {
			vecs, err := e.inner.EmbedDocuments(gctx, texts[start:end])
			if err != nil {
				return apierr.Wrap(apierr.Transient, "embed documents", err)
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EmbedQuery embeds a single question string.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.inner.EmbedQuery(ctx, text)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "embed query", err)
	}
	return vec, nil
}

// Dim reports the vector dimension produced by the configured model,
// used at startup to validate against the vector store's collection
// size before any point is ever written.
func (e *OpenAIEmbedder) Dim() int {
	if d, ok := dimByModel[e.model]; ok {
		return d
	}
	return 1536
}
