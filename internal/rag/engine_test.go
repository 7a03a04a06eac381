package rag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/adapter/adaptertest"
	"github.com/docuforge/ragcore/internal/apierr"
	"github.com/docuforge/ragcore/internal/domain"
)

func newTestEngine(llmResponse string) (*Engine, *adaptertest.Repository, *adaptertest.VectorStore) {
	repo := adaptertest.NewRepository()
	vectors := adaptertest.NewVectorStore()
	embedder := adaptertest.NewEmbedder(8)
	llm := adaptertest.NewLLMClient(llmResponse)
	engine := New(repo, vectors, embedder, llm, Config{TopK: 3})
	return engine, repo, vectors
}

func TestAskWithNoDocumentsShortCircuits(t *testing.T) {
	engine, repo, _ := newTestEngine("")
	ctx := context.Background()

	ws := &domain.Workspace{ID: "ws-1", Name: "acme", CreatedAt: time.Now()}
	require.NoError(t, repo.CreateWorkspace(ctx, ws))

	resp, err := engine.Ask(ctx, AskRequest{WorkspaceID: ws.ID, Question: "what is in the docs?"})
	require.NoError(t, err)
	require.Equal(t, noDocumentsAnswer, resp.Answer)
	require.Empty(t, resp.Sources)
	require.NotEmpty(t, resp.SessionID)
}

func TestAskRetrievesAndAnswers(t *testing.T) {
	engine, repo, vectors := newTestEngine("the answer is 42")
	ctx := context.Background()

	ws := &domain.Workspace{ID: "ws-1", Name: "acme", CreatedAt: time.Now()}
	require.NoError(t, repo.CreateWorkspace(ctx, ws))
	doc := &domain.Document{ID: "doc-1", WorkspaceID: ws.ID, DocumentName: "handbook.pdf", Status: domain.DocumentSuccess}
	require.NoError(t, repo.CreateDocument(ctx, doc))

	require.NoError(t, vectors.Upsert(ctx, []adapter.VectorPoint{
		{ID: "p1", Vector: []float32{1, 0, 0, 0, 0, 0, 0, 0}, Payload: domain.VectorPayload{
			WorkspaceID: ws.ID, DocumentID: doc.ID, DocumentName: doc.DocumentName,
			PageStart: 1, PageEnd: 1, Snippet: "relevant passage",
		}},
	}))

	resp, err := engine.Ask(ctx, AskRequest{WorkspaceID: ws.ID, Question: "what does the handbook say?"})
	require.NoError(t, err)
	require.Equal(t, "the answer is 42", resp.Answer)
	require.Len(t, resp.Sources, 1)
	require.Equal(t, doc.ID, resp.Sources[0].DocumentID)

	messages, err := repo.ListMessagesBySession(ctx, resp.SessionID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	require.Equal(t, domain.RoleUser, messages[0].Role)
	require.Equal(t, domain.RoleAssistant, messages[1].Role)

	sources := repo.SourcesFor(messages[1].ID)
	require.Len(t, sources, 1)
}

func TestAskRejectsSessionFromOtherWorkspace(t *testing.T) {
	engine, repo, _ := newTestEngine("answer")
	ctx := context.Background()

	wsA := &domain.Workspace{ID: "ws-a", Name: "a", CreatedAt: time.Now()}
	wsB := &domain.Workspace{ID: "ws-b", Name: "b", CreatedAt: time.Now()}
	require.NoError(t, repo.CreateWorkspace(ctx, wsA))
	require.NoError(t, repo.CreateWorkspace(ctx, wsB))

	session := &domain.ChatSession{ID: "sess-1", WorkspaceID: wsB.ID, CreatedAt: time.Now()}
	require.NoError(t, repo.CreateSession(ctx, session))

	_, err := engine.Ask(ctx, AskRequest{WorkspaceID: wsA.ID, Question: "q", SessionID: session.ID})
	require.Equal(t, apierr.NotFound, apierr.ClassOf(err))
}

// capturingLLM records the last prompt it was handed.
type capturingLLM struct {
	lastPrompt string
}

func (c *capturingLLM) Generate(_ context.Context, prompt string, _ adapter.GenerateParams) (string, error) {
	c.lastPrompt = prompt
	return "captured", nil
}

func TestAskIncludesOnlyRecentHistoryInPrompt(t *testing.T) {
	repo := adaptertest.NewRepository()
	vectors := adaptertest.NewVectorStore()
	embedder := adaptertest.NewEmbedder(8)
	llm := &capturingLLM{}
	engine := New(repo, vectors, embedder, llm, Config{TopK: 3, HistoryN: 2})
	ctx := context.Background()

	ws := &domain.Workspace{ID: "ws-1", Name: "acme", CreatedAt: time.Now()}
	require.NoError(t, repo.CreateWorkspace(ctx, ws))
	doc := &domain.Document{ID: "doc-1", WorkspaceID: ws.ID, DocumentName: "handbook.pdf", Status: domain.DocumentSuccess}
	require.NoError(t, repo.CreateDocument(ctx, doc))
	require.NoError(t, vectors.Upsert(ctx, []adapter.VectorPoint{
		{ID: "p1", Vector: []float32{1, 0, 0, 0, 0, 0, 0, 0}, Payload: domain.VectorPayload{
			WorkspaceID: ws.ID, DocumentID: doc.ID, DocumentName: doc.DocumentName,
			PageStart: 1, PageEnd: 1, Snippet: "passage",
		}},
	}))

	session := &domain.ChatSession{ID: "sess-1", WorkspaceID: ws.ID, CreatedAt: time.Now()}
	require.NoError(t, repo.CreateSession(ctx, session))
	base := time.Now()
	for i, content := range []string{"oldest question", "oldest answer", "recent question", "recent answer"} {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		require.NoError(t, repo.CreateMessage(ctx, &domain.ChatMessage{
			ID: content, SessionID: session.ID, Role: role,
			Content: content, CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	_, err := engine.Ask(ctx, AskRequest{WorkspaceID: ws.ID, Question: "next?", SessionID: session.ID})
	require.NoError(t, err)
	require.Contains(t, llm.lastPrompt, "recent question")
	require.Contains(t, llm.lastPrompt, "recent answer")
	require.NotContains(t, llm.lastPrompt, "oldest question")
}

func TestTrimToBudgetKeepsTopHit(t *testing.T) {
	engine, _, _ := newTestEngine("")
	if engine.encoding == nil {
		t.Skip("tiktoken encoding unavailable")
	}
	engine.cfg.ContextTokens = 1

	passages := []adapter.ScoredPoint{
		{Score: 0.9, Payload: domain.VectorPayload{Snippet: "a long passage that certainly exceeds one token"}},
		{Score: 0.5, Payload: domain.VectorPayload{Snippet: "another passage"}},
	}
	out := engine.trimToBudget(passages)
	require.Len(t, out, 1)
	require.Equal(t, float32(0.9), out[0].Score)
}

func TestDedupePassagesKeepsHighestScorePerPageRange(t *testing.T) {
	hits := []adapter.ScoredPoint{
		{Score: 0.5, Payload: domain.VectorPayload{DocumentID: "d1", PageStart: 1, PageEnd: 2}},
		{Score: 0.9, Payload: domain.VectorPayload{DocumentID: "d1", PageStart: 1, PageEnd: 2}},
		{Score: 0.7, Payload: domain.VectorPayload{DocumentID: "d2", PageStart: 3, PageEnd: 4}},
	}
	out := dedupePassages(hits)
	require.Len(t, out, 2)
	require.Equal(t, float32(0.9), out[0].Score)
	require.Equal(t, float32(0.7), out[1].Score)
}
