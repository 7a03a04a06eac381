// Package api exposes the HTTP surface: workspace CRUD, document
// upload/list/download/status, chat ask/list/messages, and an ops
// status endpoint. Generalizes the teacher's NewRouter/RouterDeps
// pattern (net/http.ServeMux with method-and-path patterns,
// loggingMiddleware, JSON helpers) to the new route set; the
// teacher's SSE query/querySync pair is replaced by a single
// synchronous /v1/chat/ask since streaming output is out of scope
// here.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/docuforge/ragcore/internal/apierr"
	"github.com/docuforge/ragcore/internal/auth"
	"github.com/docuforge/ragcore/internal/document"
	"github.com/docuforge/ragcore/internal/domain"
	"github.com/docuforge/ragcore/internal/rag"
	"github.com/docuforge/ragcore/internal/workspace"
)

type contextKey string

const claimsKey contextKey = "claims"

// StatusChecker reports whether a backing dependency is reachable,
// used by GET /v1/ops/status.
type StatusChecker interface {
	Name() string
	Healthy(ctx context.Context) error
}

// RouterDeps wires every service the HTTP layer calls into.
type RouterDeps struct {
	WorkspaceService *workspace.Service
	DocumentService  *document.Service
	RAGEngine        *rag.Engine
	Verifier         auth.Verifier
	Checkers         []StatusChecker
	MaxUploadBytes   int64
	Logger           *slog.Logger
}

// NewRouter builds the full HTTP handler tree.
func NewRouter(deps RouterDeps) http.Handler {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = document.MaxUploadBytes
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	mux := http.NewServeMux()
	h := &handlers{deps: deps}

	mux.HandleFunc("GET /v1/ops/status", h.opsStatus)

	mux.HandleFunc("POST /v1/workspaces", h.createWorkspace)
	mux.HandleFunc("GET /v1/workspaces", h.listWorkspaces)
	mux.HandleFunc("DELETE /v1/workspaces/{id}", h.deleteWorkspace)

	mux.HandleFunc("POST /v1/documents/upload", h.uploadDocument)
	mux.HandleFunc("GET /v1/documents", h.listDocuments)
	mux.HandleFunc("GET /v1/documents/{id}/download", h.downloadDocument)
	mux.HandleFunc("GET /v1/documents/{id}/status", h.documentStatus)

	mux.HandleFunc("POST /v1/chat/ask", h.chatAsk)
	mux.HandleFunc("GET /v1/chat", h.listSessions)
	mux.HandleFunc("GET /v1/chat/{session_id}/messages", h.sessionMessages)

	return h.loggingMiddleware(h.authMiddleware(mux))
}

type handlers struct {
	deps RouterDeps
}

func (h *handlers) opsStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{}
	overall := http.StatusOK
	for _, c := range h.deps.Checkers {
		if err := c.Healthy(r.Context()); err != nil {
			status[c.Name()] = "down: " + err.Error()
			overall = http.StatusServiceUnavailable
		} else {
			status[c.Name()] = "ok"
		}
	}
	writeJSON(w, overall, map[string]any{"dependencies": status, "time": time.Now().Format(time.RFC3339)})
}

func (h *handlers) createWorkspace(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		var body struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			name = body.Name
		}
	}

	ws, err := h.deps.WorkspaceService.Create(r.Context(), name)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, workspaceDTO(ws))
}

func (h *handlers) listWorkspaces(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.WorkspaceService.List(r.Context())
	if err != nil {
		writeErr(w, err)
		return
	}
	dtos := make([]workspaceDTOType, len(list))
	for i, ws := range list {
		dtos[i] = workspaceDTO(ws)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *handlers) deleteWorkspace(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.deps.WorkspaceService.Delete(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) uploadDocument(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")
	if workspaceID == "" {
		writeError(w, http.StatusBadRequest, "workspace_id is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.deps.MaxUploadBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart file part is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds configured limit")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	doc, err := h.deps.DocumentService.Upload(r.Context(), document.UploadRequest{
		WorkspaceID: workspaceID,
		FileName:    header.Filename,
		Data:        data,
	})
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"document_id": doc.ID})
}

func (h *handlers) listDocuments(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")
	docs, err := h.deps.DocumentService.List(r.Context(), workspaceID)
	if err != nil {
		writeErr(w, err)
		return
	}
	dtos := make([]documentDTOType, len(docs))
	for i, d := range docs {
		dtos[i] = documentDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *handlers) downloadDocument(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")
	docID := r.PathValue("id")

	doc, data, err := h.deps.DocumentService.Download(r.Context(), workspaceID, docID)
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", doc.DocumentName))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Type", doc.MediaType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handlers) documentStatus(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")
	docID := r.PathValue("id")

	doc, err := h.deps.DocumentService.Get(r.Context(), workspaceID, docID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"document_status": string(doc.Status)})
}

func (h *handlers) chatAsk(w http.ResponseWriter, r *http.Request) {
	var body struct {
		WorkspaceID string `json:"workspace_id"`
		Question    string `json:"question"`
		TopK        int    `json:"top_k"`
		SessionID   string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.WorkspaceID == "" || body.Question == "" {
		writeError(w, http.StatusBadRequest, "workspace_id and question are required")
		return
	}

	resp, err := h.deps.RAGEngine.Ask(r.Context(), rag.AskRequest{
		WorkspaceID: body.WorkspaceID,
		Question:    body.Question,
		TopK:        body.TopK,
		SessionID:   body.SessionID,
	})
	if err != nil {
		writeErr(w, err)
		return
	}

	sources := make([]sourceDTOType, len(resp.Sources))
	for i, s := range resp.Sources {
		sources[i] = sourceDTO(s)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"answer":     resp.Answer,
		"sources":    sources,
		"session_id": resp.SessionID,
	})
}

func (h *handlers) listSessions(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")
	sessions, err := h.deps.WorkspaceService.ListSessions(r.Context(), workspaceID)
	if err != nil {
		writeErr(w, err)
		return
	}
	dtos := make([]sessionDTOType, len(sessions))
	for i, s := range sessions {
		dtos[i] = sessionDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *handlers) sessionMessages(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.URL.Query().Get("workspace_id")
	sessionID := r.PathValue("session_id")

	msgs, err := h.deps.WorkspaceService.Messages(r.Context(), workspaceID, sessionID)
	if err != nil {
		writeErr(w, err)
		return
	}
	dtos := make([]messageDTOType, len(msgs))
	for i, m := range msgs {
		dtos[i] = messageDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Middleware

func (h *handlers) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		token := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := h.deps.Verifier.Verify(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *handlers) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.deps.Logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// Helpers

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps a classified apierr.Error to its HTTP status, per the
// error handling design's kind-to-status table.
func writeErr(w http.ResponseWriter, err error) {
	switch apierr.ClassOf(err) {
	case apierr.Validation:
		writeError(w, http.StatusBadRequest, err.Error())
	case apierr.NotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case apierr.Conflict:
		writeError(w, http.StatusConflict, err.Error())
	case apierr.UnsupportedMedia:
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case apierr.PayloadTooLarge:
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case apierr.Transient:
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case apierr.Permanent:
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func claimsFromCtx(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(claimsKey).(*auth.Claims)
	return c
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// DTOs

type workspaceDTOType struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

func workspaceDTO(ws *domain.Workspace) workspaceDTOType {
	return workspaceDTOType{ID: ws.ID, Name: ws.Name, CreatedAt: ws.CreatedAt}
}

type documentDTOType struct {
	ID               string     `json:"id"`
	WorkspaceID      string     `json:"workspace_id"`
	DocumentName     string     `json:"document_name"`
	MediaType        string     `json:"media_type"`
	PageCount        int        `json:"page_count"`
	DetectedLanguage *string    `json:"detected_language,omitempty"`
	SizeBytes        int64      `json:"size_bytes"`
	IngestedAt       *time.Time `json:"ingested_at,omitempty"`
	Status           string     `json:"status"`
	ErrorMessage     *string    `json:"error_message,omitempty"`
}

func documentDTO(d *domain.Document) documentDTOType {
	return documentDTOType{
		ID: d.ID, WorkspaceID: d.WorkspaceID, DocumentName: d.DocumentName,
		MediaType: d.MediaType, PageCount: d.PageCount, DetectedLanguage: d.DetectedLanguage,
		SizeBytes: d.SizeBytes, IngestedAt: d.IngestedAt, Status: string(d.Status),
		ErrorMessage: d.ErrorMessage,
	}
}

type sourceDTOType struct {
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	PageStart    int    `json:"page_start"`
	PageEnd      int    `json:"page_end"`
	Snippet      string `json:"snippet"`
}

func sourceDTO(s domain.ChatMessageSource) sourceDTOType {
	return sourceDTOType{
		DocumentID: s.DocumentID, DocumentName: s.DocumentName,
		PageStart: s.PageStart, PageEnd: s.PageEnd, Snippet: s.Snippet,
	}
}

type sessionDTOType struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

func sessionDTO(s *domain.ChatSession) sessionDTOType {
	return sessionDTOType{ID: s.ID, CreatedAt: s.CreatedAt}
}

type messageDTOType struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func messageDTO(m *domain.ChatMessage) messageDTOType {
	return messageDTOType{ID: m.ID, Role: string(m.Role), Content: m.Content, CreatedAt: m.CreatedAt}
}
