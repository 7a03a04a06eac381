// Package adaptertest provides in-memory fakes for every adapter
// interface, used by _test.go files across the repo so packages can
// be tested without a real Postgres/Qdrant/MinIO/LLM behind them.
package adaptertest

import (
	"bytes"
	"context"
	"io"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/apierr"
	"github.com/docuforge/ragcore/internal/domain"
)

// RawStorage is an in-memory adapter.RawStorage.
type RawStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewRawStorage() *RawStorage {
	return &RawStorage{data: map[string][]byte{}}
}

func (r *RawStorage) Put(_ context.Context, path string, data io.Reader, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.data[path]; exists {
		return apierr.Wrap(apierr.Internal, "blob path collision: "+path, nil)
	}
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	r.data[path] = buf
	return nil
}

func (r *RawStorage) Get(_ context.Context, path string) (io.ReadCloser, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	buf, ok := r.data[path]
	if !ok {
		return nil, 0, apierr.NotFoundf("blob not found: %s", path)
	}
	return io.NopCloser(bytes.NewReader(buf)), int64(len(buf)), nil
}

func (r *RawStorage) Delete(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.data, path)
	return nil
}

func (r *RawStorage) DeletePrefix(_ context.Context, prefix string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.data {
		if strings.HasPrefix(k, prefix) {
			delete(r.data, k)
		}
	}
	return nil
}

func (r *RawStorage) Exists(_ context.Context, path string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.data[path]
	return ok, nil
}

// VectorStore is an in-memory brute-force adapter.VectorStore. Score
// ties are broken by insertion order, matching the contract the real
// stores honor.
type VectorStore struct {
	mu      sync.Mutex
	dim     int
	nextSeq uint64
	seq     map[string]uint64
	points  map[string]adapter.VectorPoint
}

func NewVectorStore() *VectorStore {
	return &VectorStore{seq: map[string]uint64{}, points: map[string]adapter.VectorPoint{}}
}

func (v *VectorStore) EnsureCollection(_ context.Context, dim int, _ string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dim = dim
	return nil
}

func (v *VectorStore) Upsert(_ context.Context, points []adapter.VectorPoint) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, p := range points {
		if _, ok := v.seq[p.ID]; !ok {
			v.seq[p.ID] = v.nextSeq
			v.nextSeq++
		}
		v.points[p.ID] = p
	}
	return nil
}

func (v *VectorStore) Search(_ context.Context, vec []float32, topK int, filter adapter.SearchFilter) ([]adapter.ScoredPoint, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	type scoredID struct {
		id    string
		score float32
	}
	var matches []scoredID
	for id, p := range v.points {
		if p.Payload.WorkspaceID != filter.WorkspaceID {
			continue
		}
		if filter.DocumentID != "" && p.Payload.DocumentID != filter.DocumentID {
			continue
		}
		matches = append(matches, scoredID{id: id, score: cosine(vec, p.Vector)})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return v.seq[matches[i].id] < v.seq[matches[j].id]
	})
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}
	out := make([]adapter.ScoredPoint, len(matches))
	for i, m := range matches {
		out[i] = adapter.ScoredPoint{Score: m.score, Payload: v.points[m.id].Payload}
	}
	return out, nil
}

func (v *VectorStore) DeleteByFilter(_ context.Context, filter adapter.SearchFilter) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for id, p := range v.points {
		if p.Payload.WorkspaceID != filter.WorkspaceID {
			continue
		}
		if filter.DocumentID != "" && p.Payload.DocumentID != filter.DocumentID {
			continue
		}
		delete(v.points, id)
		delete(v.seq, id)
	}
	return nil
}

// Count returns the number of points currently stored, for assertions.
func (v *VectorStore) Count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.points)
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Embedder is a deterministic fake adapter.Embedder: each text maps
// to a vector derived from a simple character histogram, so equal
// inputs always produce equal outputs without any model weights.
type Embedder struct {
	dim int
}

func NewEmbedder(dim int) *Embedder { return &Embedder{dim: dim} }

func (e *Embedder) Dim() int { return e.dim }

func (e *Embedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vectorFor(t)
	}
	return out, nil
}

func (e *Embedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return e.vectorFor(text), nil
}

func (e *Embedder) vectorFor(text string) []float32 {
	v := make([]float32, e.dim)
	for i, r := range text {
		v[i%e.dim] += float32(r%97) / 97
	}
	return v
}

// LLMClient is a deterministic fake adapter.LLMClient that echoes a
// fixed-shape answer derived from the prompt, so RAG tests can assert
// on exact output.
type LLMClient struct {
	Response string
}

func NewLLMClient(response string) *LLMClient {
	return &LLMClient{Response: response}
}

func (c *LLMClient) Generate(_ context.Context, prompt string, _ adapter.GenerateParams) (string, error) {
	if c.Response != "" {
		return c.Response, nil
	}
	return "stub answer for: " + prompt, nil
}

// Repository is an in-memory adapter.Repository good enough to drive
// the service and engine tests; it is not transactional across
// goroutines beyond a coarse mutex (WithTx simply holds the lock for
// its duration).
type Repository struct {
	mu         sync.Mutex
	workspaces map[string]*domain.Workspace
	docs       map[string]*domain.Document
	events     map[string]map[domain.Stage]*domain.DocumentEvent
	sessions   map[string]*domain.ChatSession
	messages   map[string][]*domain.ChatMessage
	sources    map[string][]*domain.ChatMessageSource
}

func NewRepository() *Repository {
	return &Repository{
		workspaces: map[string]*domain.Workspace{},
		docs:       map[string]*domain.Document{},
		events:     map[string]map[domain.Stage]*domain.DocumentEvent{},
		sessions:   map[string]*domain.ChatSession{},
		messages:   map[string][]*domain.ChatMessage{},
		sources:    map[string][]*domain.ChatMessageSource{},
	}
}

func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx adapter.Repository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx, r)
}

func (r *Repository) CreateWorkspace(_ context.Context, ws *domain.Workspace) error {
	for _, existing := range r.workspaces {
		if existing.Name == ws.Name {
			return apierr.Conflictf("workspace name already exists: %s", ws.Name)
		}
	}
	cp := *ws
	r.workspaces[ws.ID] = &cp
	return nil
}

func (r *Repository) GetWorkspace(_ context.Context, id string) (*domain.Workspace, error) {
	ws, ok := r.workspaces[id]
	if !ok {
		return nil, apierr.NotFoundf("workspace not found: %s", id)
	}
	cp := *ws
	return &cp, nil
}

func (r *Repository) ListWorkspaces(_ context.Context) ([]*domain.Workspace, error) {
	out := make([]*domain.Workspace, 0, len(r.workspaces))
	for _, ws := range r.workspaces {
		cp := *ws
		out = append(out, &cp)
	}
	return out, nil
}

func (r *Repository) DeleteWorkspace(_ context.Context, id string) error {
	delete(r.workspaces, id)
	return nil
}

func (r *Repository) CreateDocument(_ context.Context, doc *domain.Document) error {
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *Repository) UpdateDocumentStatus(_ context.Context, id string, status domain.DocumentStatus, errMsg *string) error {
	doc, ok := r.docs[id]
	if !ok {
		return apierr.NotFoundf("document not found: %s", id)
	}
	doc.Status = status
	doc.ErrorMessage = errMsg
	return nil
}

func (r *Repository) CommitDocument(_ context.Context, doc *domain.Document) error {
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *Repository) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := r.docs[id]
	if !ok {
		return nil, apierr.NotFoundf("document not found: %s", id)
	}
	cp := *doc
	return &cp, nil
}

func (r *Repository) FindDocumentBySHA256(_ context.Context, workspaceID, sha256 string) (*domain.Document, error) {
	for _, d := range r.docs {
		if d.WorkspaceID == workspaceID && d.SHA256 == sha256 {
			cp := *d
			return &cp, nil
		}
	}
	return nil, apierr.NotFoundf("no document with matching content in workspace %s", workspaceID)
}

func (r *Repository) ListDocumentsByWorkspace(_ context.Context, workspaceID string) ([]*domain.Document, error) {
	var out []*domain.Document
	for _, d := range r.docs {
		if d.WorkspaceID == workspaceID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *Repository) CountDocumentsByWorkspace(_ context.Context, workspaceID string) (int, error) {
	n := 0
	for _, d := range r.docs {
		if d.WorkspaceID == workspaceID && d.Status == domain.DocumentSuccess {
			n++
		}
	}
	return n, nil
}

func (r *Repository) DeleteDocument(_ context.Context, id string) error {
	delete(r.docs, id)
	delete(r.events, id)
	return nil
}

func (r *Repository) UpsertStageEvent(_ context.Context, ev *domain.DocumentEvent) error {
	m, ok := r.events[ev.DocumentID]
	if !ok {
		m = map[domain.Stage]*domain.DocumentEvent{}
		r.events[ev.DocumentID] = m
	}
	cp := *ev
	m[ev.Stage] = &cp
	return nil
}

func (r *Repository) ListStageEvents(_ context.Context, documentID string) ([]*domain.DocumentEvent, error) {
	var out []*domain.DocumentEvent
	for _, ev := range r.events[documentID] {
		cp := *ev
		out = append(out, &cp)
	}
	return out, nil
}

func (r *Repository) CreateSession(_ context.Context, s *domain.ChatSession) error {
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *Repository) GetSession(_ context.Context, id string) (*domain.ChatSession, error) {
	s, ok := r.sessions[id]
	if !ok {
		return nil, apierr.NotFoundf("session not found: %s", id)
	}
	cp := *s
	return &cp, nil
}

func (r *Repository) ListSessionsByWorkspace(_ context.Context, workspaceID string) ([]*domain.ChatSession, error) {
	var out []*domain.ChatSession
	for _, s := range r.sessions {
		if s.WorkspaceID == workspaceID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *Repository) DeleteSessionsByWorkspace(_ context.Context, workspaceID string) error {
	for id, s := range r.sessions {
		if s.WorkspaceID == workspaceID {
			delete(r.sessions, id)
			delete(r.messages, id)
		}
	}
	return nil
}

func (r *Repository) CreateMessage(_ context.Context, m *domain.ChatMessage) error {
	cp := *m
	r.messages[m.SessionID] = append(r.messages[m.SessionID], &cp)
	return nil
}

func (r *Repository) ListMessagesBySession(_ context.Context, sessionID string) ([]*domain.ChatMessage, error) {
	msgs := r.messages[sessionID]
	out := make([]*domain.ChatMessage, len(msgs))
	for i, m := range msgs {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

func (r *Repository) RecentMessages(_ context.Context, sessionID string, n int) ([]*domain.ChatMessage, error) {
	msgs := r.messages[sessionID]
	start := 0
	if len(msgs) > n {
		start = len(msgs) - n
	}
	slice := msgs[start:]
	out := make([]*domain.ChatMessage, len(slice))
	for i, m := range slice {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

func (r *Repository) CreateMessageSources(_ context.Context, sources []*domain.ChatMessageSource) error {
	for _, s := range sources {
		cp := *s
		r.sources[s.MessageID] = append(r.sources[s.MessageID], &cp)
	}
	return nil
}

// SourcesFor returns the sources attached to a message, for assertions.
func (r *Repository) SourcesFor(messageID string) []*domain.ChatMessageSource {
	return r.sources[messageID]
}
