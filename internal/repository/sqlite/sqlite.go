// Package sqlite implements adapter.Repository as a local embedded
// SQL store, the Repository fallback selected when DATABASE_URL is
// unset. It uses modernc.org/sqlite, a pure-Go driver,
// so the fallback never needs cgo — a direct dependency of the
// broader example pack's liliang-cn/agent-go module, chosen over
// mattn/go-sqlite3 for that reason.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/apierr"
	"github.com/docuforge/ragcore/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS workspaces (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	document_name TEXT NOT NULL,
	media_type TEXT NOT NULL,
	sha256 TEXT NOT NULL,
	raw_storage_path TEXT NOT NULL,
	page_count INTEGER NOT NULL DEFAULT 0,
	author TEXT,
	creation_date TEXT,
	detected_language TEXT,
	size_bytes INTEGER NOT NULL DEFAULT 0,
	ingested_at TEXT,
	status TEXT NOT NULL,
	error_message TEXT
);
CREATE TABLE IF NOT EXISTS document_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id TEXT NOT NULL,
	stage TEXT NOT NULL,
	status TEXT NOT NULL,
	started_at TEXT NOT NULL,
	finished_at TEXT,
	duration_ms INTEGER,
	UNIQUE(document_id, stage)
);
CREATE TABLE IF NOT EXISTS chat_sessions (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chat_messages (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS chat_message_sources (
	id TEXT PRIMARY KEY,
	message_id TEXT NOT NULL,
	document_id TEXT NOT NULL,
	document_name TEXT NOT NULL,
	page_start INTEGER NOT NULL,
	page_end INTEGER NOT NULL,
	snippet TEXT NOT NULL
);
`

// Repository is the sqlite-backed adapter.Repository.
type Repository struct {
	db *sql.DB
	ex execer
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (creating if needed) a sqlite database file under dir and
// applies the schema.
func New(dir string) (*Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apierr.Wrap(apierr.Permanent, "create local storage directory", err)
	}
	path := filepath.Join(dir, "docuforge.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apierr.Wrap(apierr.Permanent, "open sqlite database", err)
	}
	db.SetMaxOpenConns(1) // sqlite: one writer at a time keeps row-level-lock semantics simple

	if _, err := db.Exec(schema); err != nil {
		return nil, apierr.Wrap(apierr.Permanent, "apply sqlite schema", err)
	}
	return &Repository{db: db, ex: db}, nil
}

func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx adapter.Repository) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "begin transaction", err)
	}
	txRepo := &Repository{db: r.db, ex: tx}

	if err := fn(ctx, txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return apierr.Wrap(apierr.Internal, "rollback after error", err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return apierr.Wrap(apierr.Transient, "commit transaction", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (r *Repository) CreateWorkspace(ctx context.Context, ws *domain.Workspace) error {
	_, err := r.ex.ExecContext(ctx,
		`INSERT INTO workspaces (id, name, created_at) VALUES (?, ?, ?)`,
		ws.ID, ws.Name, ws.CreatedAt.Format(timeLayout),
	)
	if isUniqueViolation(err) {
		return apierr.Conflictf("workspace name already exists: %s", ws.Name)
	}
	if err != nil {
		return apierr.Wrap(apierr.Transient, "create workspace", err)
	}
	return nil
}

func (r *Repository) GetWorkspace(ctx context.Context, id string) (*domain.Workspace, error) {
	ws := &domain.Workspace{}
	var createdAt string
	err := r.ex.QueryRowContext(ctx, `SELECT id, name, created_at FROM workspaces WHERE id=?`, id).
		Scan(&ws.ID, &ws.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFoundf("workspace not found: %s", id)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "get workspace", err)
	}
	ws.CreatedAt = mustParseTime(createdAt)
	return ws, nil
}

func (r *Repository) ListWorkspaces(ctx context.Context) ([]*domain.Workspace, error) {
	rows, err := r.ex.QueryContext(ctx, `SELECT id, name, created_at FROM workspaces ORDER BY created_at DESC`)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "list workspaces", err)
	}
	defer rows.Close()

	var out []*domain.Workspace
	for rows.Next() {
		ws := &domain.Workspace{}
		var createdAt string
		if err := rows.Scan(&ws.ID, &ws.Name, &createdAt); err != nil {
			return nil, apierr.Wrap(apierr.Internal, "scan workspace", err)
		}
		ws.CreatedAt = mustParseTime(createdAt)
		out = append(out, ws)
	}
	return out, rows.Err()
}

// DeleteWorkspace removes the workspace and every row hanging off it.
// The workspace row itself goes last so an interrupted cascade can be
// retried against a still-visible workspace.
func (r *Repository) DeleteWorkspace(ctx context.Context, id string) error {
	stmts := []string{
		`DELETE FROM chat_message_sources WHERE message_id IN (
			SELECT m.id FROM chat_messages m
			JOIN chat_sessions s ON m.session_id = s.id WHERE s.workspace_id=?)`,
		`DELETE FROM chat_messages WHERE session_id IN (
			SELECT id FROM chat_sessions WHERE workspace_id=?)`,
		`DELETE FROM chat_sessions WHERE workspace_id=?`,
		`DELETE FROM document_events WHERE document_id IN (
			SELECT id FROM documents WHERE workspace_id=?)`,
		`DELETE FROM documents WHERE workspace_id=?`,
		`DELETE FROM workspaces WHERE id=?`,
	}
	for _, stmt := range stmts {
		if _, err := r.ex.ExecContext(ctx, stmt, id); err != nil {
			return apierr.Wrap(apierr.Transient, "delete workspace", err)
		}
	}
	return nil
}

func (r *Repository) CreateDocument(ctx context.Context, doc *domain.Document) error {
	_, err := r.ex.ExecContext(ctx,
		`INSERT INTO documents (id, workspace_id, document_name, media_type, sha256, raw_storage_path,
			page_count, size_bytes, status) VALUES (?,?,?,?,?,?,?,?,?)`,
		doc.ID, doc.WorkspaceID, doc.DocumentName, doc.MediaType, doc.SHA256, doc.RawStoragePath,
		doc.PageCount, doc.SizeBytes, string(doc.Status),
	)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "create document", err)
	}
	return nil
}

func (r *Repository) UpdateDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, errMsg *string) error {
	_, err := r.ex.ExecContext(ctx,
		`UPDATE documents SET status=?, error_message=? WHERE id=?`, string(status), errMsg, id,
	)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "update document status", err)
	}
	return nil
}

func (r *Repository) CommitDocument(ctx context.Context, doc *domain.Document) error {
	var ingestedAt, creationDate *string
	if doc.IngestedAt != nil {
		s := doc.IngestedAt.Format(timeLayout)
		ingestedAt = &s
	}
	if doc.CreationDate != nil {
		s := doc.CreationDate.Format(timeLayout)
		creationDate = &s
	}
	_, err := r.ex.ExecContext(ctx,
		`UPDATE documents SET page_count=?, author=?, creation_date=?, detected_language=?,
			ingested_at=?, status=?, error_message=? WHERE id=?`,
		doc.PageCount, doc.Author, creationDate, doc.DetectedLanguage,
		ingestedAt, string(doc.Status), doc.ErrorMessage, doc.ID,
	)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "commit document", err)
	}
	return nil
}

func (r *Repository) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	doc := &domain.Document{}
	var status string
	var creationDate, ingestedAt *string
	err := r.ex.QueryRowContext(ctx,
		`SELECT id, workspace_id, document_name, media_type, sha256, raw_storage_path,
			page_count, author, creation_date, detected_language, size_bytes, ingested_at,
			status, error_message FROM documents WHERE id=?`, id,
	).Scan(&doc.ID, &doc.WorkspaceID, &doc.DocumentName, &doc.MediaType, &doc.SHA256, &doc.RawStoragePath,
		&doc.PageCount, &doc.Author, &creationDate, &doc.DetectedLanguage, &doc.SizeBytes, &ingestedAt,
		&status, &doc.ErrorMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFoundf("document not found: %s", id)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "get document", err)
	}
	doc.Status = domain.DocumentStatus(status)
	if creationDate != nil {
		t := mustParseTime(*creationDate)
		doc.CreationDate = &t
	}
	if ingestedAt != nil {
		t := mustParseTime(*ingestedAt)
		doc.IngestedAt = &t
	}
	return doc, nil
}

// FindDocumentBySHA256 returns the first document in a workspace with
// the given content hash, for duplicate-upload detection.
func (r *Repository) FindDocumentBySHA256(ctx context.Context, workspaceID, sha256 string) (*domain.Document, error) {
	var id string
	err := r.ex.QueryRowContext(ctx,
		`SELECT id FROM documents WHERE workspace_id=? AND sha256=? ORDER BY id LIMIT 1`,
		workspaceID, sha256,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFoundf("no document with matching content in workspace %s", workspaceID)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "find document by sha256", err)
	}
	return r.GetDocument(ctx, id)
}

func (r *Repository) ListDocumentsByWorkspace(ctx context.Context, workspaceID string) ([]*domain.Document, error) {
	rows, err := r.ex.QueryContext(ctx,
		`SELECT id, workspace_id, document_name, media_type, sha256, raw_storage_path,
			page_count, author, creation_date, detected_language, size_bytes, ingested_at,
			status, error_message FROM documents WHERE workspace_id=? ORDER BY id`, workspaceID,
	)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "list documents", err)
	}
	defer rows.Close()

	var out []*domain.Document
	for rows.Next() {
		doc := &domain.Document{}
		var status string
		var creationDate, ingestedAt *string
		if err := rows.Scan(&doc.ID, &doc.WorkspaceID, &doc.DocumentName, &doc.MediaType, &doc.SHA256, &doc.RawStoragePath,
			&doc.PageCount, &doc.Author, &creationDate, &doc.DetectedLanguage, &doc.SizeBytes, &ingestedAt,
			&status, &doc.ErrorMessage); err != nil {
			return nil, apierr.Wrap(apierr.Internal, "scan document", err)
		}
		doc.Status = domain.DocumentStatus(status)
		if creationDate != nil {
			t := mustParseTime(*creationDate)
			doc.CreationDate = &t
		}
		if ingestedAt != nil {
			t := mustParseTime(*ingestedAt)
			doc.IngestedAt = &t
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (r *Repository) CountDocumentsByWorkspace(ctx context.Context, workspaceID string) (int, error) {
	var n int
	err := r.ex.QueryRowContext(ctx,
		`SELECT count(*) FROM documents WHERE workspace_id=? AND status='SUCCESS'`, workspaceID,
	).Scan(&n)
	if err != nil {
		return 0, apierr.Wrap(apierr.Transient, "count documents", err)
	}
	return n, nil
}

func (r *Repository) DeleteDocument(ctx context.Context, id string) error {
	if _, err := r.ex.ExecContext(ctx, `DELETE FROM document_events WHERE document_id=?`, id); err != nil {
		return apierr.Wrap(apierr.Transient, "delete document events", err)
	}
	_, err := r.ex.ExecContext(ctx, `DELETE FROM documents WHERE id=?`, id)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "delete document", err)
	}
	return nil
}

func (r *Repository) UpsertStageEvent(ctx context.Context, ev *domain.DocumentEvent) error {
	var finishedAt *string
	if ev.FinishedAt != nil {
		s := ev.FinishedAt.Format(timeLayout)
		finishedAt = &s
	}
	_, err := r.ex.ExecContext(ctx,
		`INSERT INTO document_events (document_id, stage, status, started_at, finished_at, duration_ms)
		 VALUES (?,?,?,?,?,?)
		 ON CONFLICT(document_id, stage) DO UPDATE SET
			status=excluded.status, finished_at=excluded.finished_at, duration_ms=excluded.duration_ms`,
		ev.DocumentID, string(ev.Stage), string(ev.Status), ev.StartedAt.Format(timeLayout), finishedAt, ev.DurationMS,
	)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "upsert stage event", err)
	}
	return nil
}

func (r *Repository) ListStageEvents(ctx context.Context, documentID string) ([]*domain.DocumentEvent, error) {
	rows, err := r.ex.QueryContext(ctx,
		`SELECT id, document_id, stage, status, started_at, finished_at, duration_ms
		 FROM document_events WHERE document_id=? ORDER BY started_at`, documentID,
	)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "list stage events", err)
	}
	defer rows.Close()

	var out []*domain.DocumentEvent
	for rows.Next() {
		ev := &domain.DocumentEvent{}
		var stage, status, startedAt string
		var finishedAt *string
		if err := rows.Scan(&ev.ID, &ev.DocumentID, &stage, &status, &startedAt, &finishedAt, &ev.DurationMS); err != nil {
			return nil, apierr.Wrap(apierr.Internal, "scan stage event", err)
		}
		ev.Stage = domain.Stage(stage)
		ev.Status = domain.DocumentStatus(status)
		ev.StartedAt = mustParseTime(startedAt)
		if finishedAt != nil {
			t := mustParseTime(*finishedAt)
			ev.FinishedAt = &t
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *Repository) CreateSession(ctx context.Context, s *domain.ChatSession) error {
	_, err := r.ex.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, workspace_id, created_at) VALUES (?,?,?)`,
		s.ID, s.WorkspaceID, s.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "create session", err)
	}
	return nil
}

func (r *Repository) GetSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	s := &domain.ChatSession{}
	var createdAt string
	err := r.ex.QueryRowContext(ctx, `SELECT id, workspace_id, created_at FROM chat_sessions WHERE id=?`, id).
		Scan(&s.ID, &s.WorkspaceID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFoundf("session not found: %s", id)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "get session", err)
	}
	s.CreatedAt = mustParseTime(createdAt)
	return s, nil
}

func (r *Repository) ListSessionsByWorkspace(ctx context.Context, workspaceID string) ([]*domain.ChatSession, error) {
	rows, err := r.ex.QueryContext(ctx,
		`SELECT id, workspace_id, created_at FROM chat_sessions WHERE workspace_id=? ORDER BY created_at`, workspaceID,
	)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "list sessions", err)
	}
	defer rows.Close()

	var out []*domain.ChatSession
	for rows.Next() {
		s := &domain.ChatSession{}
		var createdAt string
		if err := rows.Scan(&s.ID, &s.WorkspaceID, &createdAt); err != nil {
			return nil, apierr.Wrap(apierr.Internal, "scan session", err)
		}
		s.CreatedAt = mustParseTime(createdAt)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteSessionsByWorkspace(ctx context.Context, workspaceID string) error {
	stmts := []string{
		`DELETE FROM chat_message_sources WHERE message_id IN (
			SELECT m.id FROM chat_messages m
			JOIN chat_sessions s ON m.session_id = s.id WHERE s.workspace_id=?)`,
		`DELETE FROM chat_messages WHERE session_id IN (
			SELECT id FROM chat_sessions WHERE workspace_id=?)`,
		`DELETE FROM chat_sessions WHERE workspace_id=?`,
	}
	for _, stmt := range stmts {
		if _, err := r.ex.ExecContext(ctx, stmt, workspaceID); err != nil {
			return apierr.Wrap(apierr.Transient, "delete sessions", err)
		}
	}
	return nil
}

func (r *Repository) CreateMessage(ctx context.Context, m *domain.ChatMessage) error {
	_, err := r.ex.ExecContext(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.SessionID, string(m.Role), m.Content, m.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "create message", err)
	}
	return nil
}

func (r *Repository) ListMessagesBySession(ctx context.Context, sessionID string) ([]*domain.ChatMessage, error) {
	rows, err := r.ex.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM chat_messages
		 WHERE session_id=? ORDER BY created_at ASC`, sessionID,
	)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "list messages", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *Repository) RecentMessages(ctx context.Context, sessionID string, n int) ([]*domain.ChatMessage, error) {
	rows, err := r.ex.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at FROM
			(SELECT id, session_id, role, content, created_at FROM chat_messages
			 WHERE session_id=? ORDER BY created_at DESC LIMIT ?) recent
		 ORDER BY created_at ASC`, sessionID, n,
	)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "recent messages", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]*domain.ChatMessage, error) {
	var out []*domain.ChatMessage
	for rows.Next() {
		m := &domain.ChatMessage{}
		var role, createdAt string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &createdAt); err != nil {
			return nil, apierr.Wrap(apierr.Internal, "scan message", err)
		}
		m.Role = domain.MessageRole(role)
		m.CreatedAt = mustParseTime(createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) CreateMessageSources(ctx context.Context, sources []*domain.ChatMessageSource) error {
	for _, src := range sources {
		_, err := r.ex.ExecContext(ctx,
			`INSERT INTO chat_message_sources (id, message_id, document_id, document_name, page_start, page_end, snippet)
			 VALUES (?,?,?,?,?,?,?)`,
			src.ID, src.MessageID, src.DocumentID, src.DocumentName, src.PageStart, src.PageEnd, src.Snippet,
		)
		if err != nil {
			return apierr.Wrap(apierr.Transient, "create message source", err)
		}
	}
	return nil
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

func mustParseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
