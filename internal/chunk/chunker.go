// Package chunk splits extracted page text into overlapping chunks
// using langchaingo's RecursiveCharacter splitter, the same splitter
// the teacher's document.splitDocument uses, generalized to run
// per-page so page boundaries survive into each Chunk.
package chunk

import (
	"context"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/apierr"
)

// Chunk is one piece of a document ready for embedding.
type Chunk struct {
	Text       string
	PageStart  int
	PageEnd    int
	TokenCount int
}

// Splitter wraps the configured RecursiveCharacter splitter plus a
// tiktoken encoding used purely for token counting, not for the split
// boundaries themselves.
type Splitter struct {
	inner    textsplitter.RecursiveCharacter
	encoding *tiktoken.Tiktoken
}

// New builds a Splitter with the given chunk size/overlap (runes) and
// the tiktoken encoding used for the configured generation model.
func New(chunkSize, chunkOverlap int, tokenizerModel string) (*Splitter, error) {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 150
	}
	if tokenizerModel == "" {
		tokenizerModel = "gpt-3.5-turbo"
	}
	enc, err := tiktoken.EncodingForModel(tokenizerModel)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, apierr.Wrap(apierr.Permanent, "load tiktoken encoding", err)
		}
	}
	return &Splitter{
		inner: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
		encoding: enc,
	}, nil
}

// Split turns a document's extracted pages into chunks, splitting
// each page independently so every chunk's page_start/page_end name
// exactly the page its text came from. A short page still yields its
// own chunk: retrieval must be able to point at any page, however
// little text it carries.
func (s *Splitter) Split(_ context.Context, pages []adapter.Page) ([]Chunk, error) {
	var out []Chunk
	for _, page := range pages {
		pieces, err := s.inner.SplitText(page.Text)
		if err != nil {
			return nil, apierr.Wrap(apierr.Internal, "split page text", err)
		}
		for _, p := range pieces {
			if strings.TrimSpace(p) == "" {
				continue
			}
			out = append(out, Chunk{
				Text:       p,
				PageStart:  page.Number,
				PageEnd:    page.Number,
				TokenCount: len(s.encoding.Encode(p, nil, nil)),
			})
		}
	}
	return out, nil
}

// CountTokens returns the token count of a single string under this
// splitter's configured encoding.
func (s *Splitter) CountTokens(text string) int {
	return len(s.encoding.Encode(text, nil, nil))
}
