package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// LocalEmbedder is a deterministic, dependency-free fallback used when
// no OPENAI_API_KEY is configured. It hashes word tokens into a fixed-size
// histogram rather than calling out to a real model, which keeps
// retrieval behavior stable for local development and tests without
// shipping network calls.
type LocalEmbedder struct {
	dim int
}

// NewLocalEmbedder builds a LocalEmbedder producing vectors of size dim.
func NewLocalEmbedder(dim int) *LocalEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &LocalEmbedder{dim: dim}
}

func (e *LocalEmbedder) vectorFor(text string) []float32 {
	vec := make([]float32, e.dim)
	h := fnv.New32a()
	for _, tok := range tokenize(text) {
		h.Reset()
		_, _ = h.Write([]byte(tok))
		idx := int(h.Sum32()) % e.dim
		if idx < 0 {
			idx += e.dim
		}
		vec[idx]++
	}
	normalize(vec)
	return vec
}

func tokenize(text string) []string {
	var out []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			out = append(out, string(cur))
			cur = cur[:0]
		}
	}
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			cur = append(cur, r)
		default:
			flush()
		}
	}
	flush()
	return out
}

func normalize(vec []float32) {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	if sumSq == 0 {
		return
	}
	norm := float32(1 / math.Sqrt(sumSq))
	for i := range vec {
		vec[i] *= norm
	}
}

func (e *LocalEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vectorFor(t)
	}
	return out, nil
}

func (e *LocalEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vectorFor(text), nil
}

func (e *LocalEmbedder) Dim() int { return e.dim }
