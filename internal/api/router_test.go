package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/docuforge/ragcore/internal/adapter/adaptertest"
	"github.com/docuforge/ragcore/internal/auth"
	"github.com/docuforge/ragcore/internal/chunk"
	"github.com/docuforge/ragcore/internal/document"
	"github.com/docuforge/ragcore/internal/ingest"
	"github.com/docuforge/ragcore/internal/jobqueue"
	"github.com/docuforge/ragcore/internal/rag"
	"github.com/docuforge/ragcore/internal/workspace"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	repo := adaptertest.NewRepository()
	raw := adaptertest.NewRawStorage()
	vectors := adaptertest.NewVectorStore()
	embedder := adaptertest.NewEmbedder(16)
	llm := adaptertest.NewLLMClient("test answer")
	splitter, err := chunk.New(200, 20, "")
	require.NoError(t, err)

	pipeline := ingest.New(repo, raw, vectors, embedder, splitter, ingest.Config{})
	queue := jobqueue.New(16, 2)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = queue.Run(ctx) }()

	wsSvc := workspace.New(repo, raw, vectors, queue)
	docSvc := document.New(repo, raw, vectors, pipeline, queue)
	ragEngine := rag.New(repo, vectors, embedder, llm, rag.Config{})

	return NewRouter(RouterDeps{
		WorkspaceService: wsSvc,
		DocumentService:  docSvc,
		RAGEngine:        ragEngine,
		Verifier:         auth.AllowAll(),
	})
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestCreateAndListWorkspaces(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/workspaces?name=acme", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var created workspaceDTOType
	decodeJSON(t, rec, &created)
	require.NotEmpty(t, created.ID)
	require.Equal(t, "acme", created.Name)

	listReq := httptest.NewRequest(http.MethodGet, "/v1/workspaces", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	var list []workspaceDTOType
	decodeJSON(t, listRec, &list)
	require.Len(t, list, 1)
}

func TestCreateWorkspaceWithoutNameIsBadRequest(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/workspaces", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteUnknownWorkspaceReturnsNotFound(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodDelete, "/v1/workspaces/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func createWorkspace(t *testing.T, router http.Handler, name string) workspaceDTOType {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/workspaces?name="+name, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	var ws workspaceDTOType
	decodeJSON(t, rec, &ws)
	return ws
}

func uploadDocument(t *testing.T, router http.Handler, workspaceID, filename string, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/upload?workspace_id="+workspaceID, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestUploadDocumentAndListByWorkspace(t *testing.T) {
	router := newTestRouter(t)
	ws := createWorkspace(t, router, "acme")

	rec := uploadDocument(t, router, ws.ID, "report.pdf", []byte("%PDF-1.4 fake body"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/v1/documents?workspace_id="+ws.ID, nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)
	require.Equal(t, http.StatusOK, listRec.Code)

	var docs []documentDTOType
	decodeJSON(t, listRec, &docs)
	require.Len(t, docs, 1)
	require.Equal(t, "report.pdf", docs[0].DocumentName)
}

func TestUploadUnsupportedMediaTypeIsRejected(t *testing.T) {
	router := newTestRouter(t)
	ws := createWorkspace(t, router, "acme")

	png := append([]byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, make([]byte, 64)...)
	rec := uploadDocument(t, router, ws.ID, "img.png", png)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	listReq := httptest.NewRequest(http.MethodGet, "/v1/documents?workspace_id="+ws.ID, nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, listReq)

	var docs []documentDTOType
	decodeJSON(t, listRec, &docs)
	require.Empty(t, docs)
}

func TestUploadDocumentWithoutWorkspaceIDIsBadRequest(t *testing.T) {
	router := newTestRouter(t)
	rec := uploadDocument(t, router, "", "notes.txt", []byte("data"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadDocumentUnknownWorkspaceIsNotFound(t *testing.T) {
	router := newTestRouter(t)
	rec := uploadDocument(t, router, "missing-workspace", "notes.txt", []byte("data"))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChatAskWithNoDocumentsReturnsFallbackAnswer(t *testing.T) {
	router := newTestRouter(t)
	ws := createWorkspace(t, router, "acme")

	payload, err := json.Marshal(map[string]string{
		"workspace_id": ws.ID,
		"question":     "what is in the handbook?",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/ask", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	decodeJSON(t, rec, &resp)
	require.NotEmpty(t, resp["session_id"])
	require.NotEmpty(t, resp["answer"])
}

func TestChatAskMissingFieldsIsBadRequest(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/ask", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpsStatusWithNoCheckersReturnsOK(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/ops/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
