// Package rag implements the question-answering algorithm: resolve
// session, embed the question, search the vector store, assemble a
// prompt from the retrieved passages plus recent history, call the
// LLM, and persist the turn. It generalizes the teacher's
// RAGService.Query, replacing its streamed-channel LLM call with a
// single blocking generate (streaming responses are out of scope here)
// and replacing langchaingo's own SimilaritySearch/AddDocuments with
// this repo's adapter.VectorStore/Repository seams.
package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/apierr"
	"github.com/docuforge/ragcore/internal/domain"
)

const systemInstruction = `You are a helpful knowledge-base assistant.
Answer the user's question using ONLY the provided context passages.
If the answer is not in the context, say "I don't have enough information to answer that."
Be concise and cite passage numbers when referencing specific information.`

const noDocumentsAnswer = "I don't have any documents indexed in this workspace yet, so I can't answer that."

// Config controls prompt assembly and generation parameters.
type Config struct {
	TopK          int
	HistoryN      int
	Model         string
	Temperature   float64
	MaxTokens     int
	ContextTokens int
}

func (c Config) withDefaults() Config {
	if c.TopK <= 0 {
		c.TopK = 3
	}
	if c.HistoryN <= 0 {
		c.HistoryN = 4
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 800
	}
	if c.ContextTokens <= 0 {
		c.ContextTokens = 3000
	}
	return c
}

// Engine answers questions grounded in a workspace's indexed documents.
type Engine struct {
	repo     adapter.Repository
	vectors  adapter.VectorStore
	embedder adapter.Embedder
	llm      adapter.LLMClient
	encoding *tiktoken.Tiktoken
	cfg      Config
}

// New builds an Engine. The tiktoken encoding is only used to budget
// context passages; if it can't be loaded the engine runs without
// trimming rather than failing construction.
func New(repo adapter.Repository, vectors adapter.VectorStore, embedder adapter.Embedder, llm adapter.LLMClient, cfg Config) *Engine {
	enc, _ := tiktoken.GetEncoding("cl100k_base")
	return &Engine{repo: repo, vectors: vectors, embedder: embedder, llm: llm, encoding: enc, cfg: cfg.withDefaults()}
}

// AskRequest is one question against a workspace.
type AskRequest struct {
	WorkspaceID string
	Question    string
	SessionID   string
	TopK        int
}

// AskResponse is the answer plus its grounding sources.
type AskResponse struct {
	Answer    string
	Sources   []domain.ChatMessageSource
	SessionID string
}

// Ask runs the nine-step retrieval-augmented generation algorithm.
func (e *Engine) Ask(ctx context.Context, req AskRequest) (*AskResponse, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = e.cfg.TopK
	}

	session, err := e.resolveSession(ctx, req.WorkspaceID, req.SessionID)
	if err != nil {
		return nil, err
	}

	queryVec, err := e.embedder.EmbedQuery(ctx, req.Question)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "embed question", err)
	}

	hits, err := e.vectors.Search(ctx, queryVec, topK, adapter.SearchFilter{WorkspaceID: req.WorkspaceID})
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "search vector store", err)
	}

	count, err := e.repo.CountDocumentsByWorkspace(ctx, req.WorkspaceID)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "count workspace documents", err)
	}
	if count == 0 || len(hits) == 0 {
		return e.persistAndReturn(ctx, session.ID, req.Question, noDocumentsAnswer, nil)
	}

	passages := e.trimToBudget(dedupePassages(hits))

	history, err := e.repo.RecentMessages(ctx, session.ID, e.cfg.HistoryN)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "fetch recent messages", err)
	}

	prompt := assemblePrompt(passages, history, req.Question)

	answer, err := e.llm.Generate(ctx, prompt, adapter.GenerateParams{
		Model:       e.cfg.Model,
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "generate answer", err)
	}

	sources := make([]domain.ChatMessageSource, len(passages))
	for i, p := range passages {
		sources[i] = domain.ChatMessageSource{
			DocumentID:   p.Payload.DocumentID,
			DocumentName: p.Payload.DocumentName,
			PageStart:    p.Payload.PageStart,
			PageEnd:      p.Payload.PageEnd,
			Snippet:      p.Payload.Snippet,
		}
	}

	return e.persistAndReturn(ctx, session.ID, req.Question, answer, sources)
}

func (e *Engine) resolveSession(ctx context.Context, workspaceID, sessionID string) (*domain.ChatSession, error) {
	if sessionID == "" {
		session := &domain.ChatSession{
			ID:          uuid.NewString(),
			WorkspaceID: workspaceID,
			CreatedAt:   time.Now(),
		}
		if err := e.repo.CreateSession(ctx, session); err != nil {
			return nil, apierr.Wrap(apierr.Transient, "create session", err)
		}
		return session, nil
	}

	session, err := e.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.WorkspaceID != workspaceID {
		return nil, apierr.NotFoundf("session not found in workspace: %s", sessionID)
	}
	return session, nil
}

// dedupePassages keeps, for each (document_id, page_start, page_end),
// only its highest-similarity occurrence, preserving the vector
// store's score ordering among the survivors.
func dedupePassages(hits []adapter.ScoredPoint) []adapter.ScoredPoint {
	best := map[string]adapter.ScoredPoint{}
	order := map[string]int{}
	for i, h := range hits {
		key := fmt.Sprintf("%s|%d|%d", h.Payload.DocumentID, h.Payload.PageStart, h.Payload.PageEnd)
		if existing, ok := best[key]; !ok || h.Score > existing.Score {
			best[key] = h
			if _, seen := order[key]; !seen {
				order[key] = i
			}
		}
	}
	keys := make([]string, 0, len(best))
	for k := range best {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if best[keys[i]].Score != best[keys[j]].Score {
			return best[keys[i]].Score > best[keys[j]].Score
		}
		return order[keys[i]] < order[keys[j]]
	})
	out := make([]adapter.ScoredPoint, len(keys))
	for i, k := range keys {
		out[i] = best[k]
	}
	return out
}

// trimToBudget drops the lowest-ranked passages once the cumulative
// snippet token count exceeds the configured context budget, always
// keeping the top hit.
func (e *Engine) trimToBudget(passages []adapter.ScoredPoint) []adapter.ScoredPoint {
	if e.encoding == nil {
		return passages
	}
	total := 0
	for i, p := range passages {
		total += len(e.encoding.Encode(p.Payload.Snippet, nil, nil))
		if total > e.cfg.ContextTokens && i > 0 {
			return passages[:i]
		}
	}
	return passages
}

func assemblePrompt(passages []adapter.ScoredPoint, history []*domain.ChatMessage, question string) string {
	var ctxBuilder strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&ctxBuilder, "--- Passage %d (%s, pages %d-%d) ---\n%s\n\n",
			i+1, p.Payload.DocumentName, p.Payload.PageStart, p.Payload.PageEnd, p.Payload.Snippet)
	}

	var histBuilder strings.Builder
	for _, m := range history {
		fmt.Fprintf(&histBuilder, "%s: %s\n", m.Role, m.Content)
	}

	return fmt.Sprintf("%s\n\nContext:\n%s\nConversation so far:\n%s\nQuestion: %s",
		systemInstruction, ctxBuilder.String(), histBuilder.String(), question)
}

func (e *Engine) persistAndReturn(ctx context.Context, sessionID, question, answer string, sources []domain.ChatMessageSource) (*AskResponse, error) {
	var assistantID string
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx adapter.Repository) error {
		now := time.Now()
		userMsg := &domain.ChatMessage{
			ID: uuid.NewString(), SessionID: sessionID, Role: domain.RoleUser,
			Content: question, CreatedAt: now,
		}
		if err := tx.CreateMessage(ctx, userMsg); err != nil {
			return err
		}

		assistantMsg := &domain.ChatMessage{
			ID: uuid.NewString(), SessionID: sessionID, Role: domain.RoleAssistant,
			Content: answer, CreatedAt: now.Add(time.Millisecond),
		}
		if err := tx.CreateMessage(ctx, assistantMsg); err != nil {
			return err
		}
		assistantID = assistantMsg.ID

		if len(sources) == 0 {
			return nil
		}
		rows := make([]*domain.ChatMessageSource, len(sources))
		for i := range sources {
			s := sources[i]
			s.ID = uuid.NewString()
			s.MessageID = assistantID
			rows[i] = &s
		}
		return tx.CreateMessageSources(ctx, rows)
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "persist chat turn", err)
	}

	return &AskResponse{Answer: answer, Sources: sources, SessionID: sessionID}, nil
}
