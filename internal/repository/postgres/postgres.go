// Package postgres implements adapter.Repository over Postgres via
// pgx, selected when DATABASE_URL is set. Grounded on
// tenant.Repository/document.Repository in the teacher, generalized
// to the full entity set and wrapped in an explicit
// unit-of-work combinator per the REDESIGN FLAGS note ("replace
// 'unit of work' around ORM session with an explicit transaction
// handle ... or a with_transaction(fn) combinator").
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/docuforge/ragcore/internal/adapter"
	"github.com/docuforge/ragcore/internal/apierr"
	"github.com/docuforge/ragcore/internal/domain"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, letting
// Repository methods run unchanged whether or not they're inside a
// transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the Postgres-backed adapter.Repository.
type Repository struct {
	pool *pgxpool.Pool
	db   querier
}

// New wraps an already-connected pool. Schema migration is assumed to
// have been applied out of band (the teacher does the same: it never
// runs DDL itself).
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

// WithTx runs fn inside a single Postgres transaction, committing on
// a nil return and rolling back otherwise — the explicit
// with_transaction(fn) combinator the REDESIGN FLAGS note calls for.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx adapter.Repository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "begin transaction", err)
	}
	txRepo := &Repository{pool: r.pool, db: tx}

	if err := fn(ctx, txRepo); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return apierr.Wrap(apierr.Internal, "rollback after error", err)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apierr.Wrap(apierr.Transient, "commit transaction", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *Repository) CreateWorkspace(ctx context.Context, ws *domain.Workspace) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO workspaces (id, name, created_at) VALUES ($1, $2, $3)`,
		ws.ID, ws.Name, ws.CreatedAt,
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
	err := r.db.QueryRow(ctx,
		`SELECT id, name, created_at FROM workspaces WHERE id=$1`, id,
	).Scan(&ws.ID, &ws.Name, &ws.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apierr.NotFoundf("workspace not found: %s", id)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "get workspace", err)
	}
	return ws, nil
}

func (r *Repository) ListWorkspaces(ctx context.Context) ([]*domain.Workspace, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, created_at FROM workspaces ORDER BY created_at DESC`)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "list workspaces", err)
	}
	defer rows.Close()

	var out []*domain.Workspace
	for rows.Next() {
		ws := &domain.Workspace{}
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.CreatedAt); err != nil {
			return nil, apierr.Wrap(apierr.Internal, "scan workspace", err)
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

// DeleteWorkspace removes the workspace row. It is the last row
// removed by the cascade delete path, so it assumes vectors and
// blobs have already been cleared by the caller.
func (r *Repository) DeleteWorkspace(ctx context.Context, id string) error {
	stmts := []string{
		`DELETE FROM chat_message_sources WHERE message_id IN (
			SELECT m.id FROM chat_messages m
			JOIN chat_sessions s ON m.session_id = s.id WHERE s.workspace_id=$1)`,
		`DELETE FROM chat_messages WHERE session_id IN (
			SELECT id FROM chat_sessions WHERE workspace_id=$1)`,
		`DELETE FROM chat_sessions WHERE workspace_id=$1`,
		`DELETE FROM document_events WHERE document_id IN (
			SELECT id FROM documents WHERE workspace_id=$1)`,
		`DELETE FROM documents WHERE workspace_id=$1`,
		`DELETE FROM workspaces WHERE id=$1`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(ctx, stmt, id); err != nil {
			return apierr.Wrap(apierr.Transient, "delete workspace", err)
		}
	}
	return nil
}

func (r *Repository) CreateDocument(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents (id, workspace_id, document_name, media_type, sha256, raw_storage_path,
			page_count, size_bytes, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		doc.ID, doc.WorkspaceID, doc.DocumentName, doc.MediaType, doc.SHA256, doc.RawStoragePath,
		doc.PageCount, doc.SizeBytes, doc.Status,
	)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "create document", err)
	}
	return nil
}

func (r *Repository) UpdateDocumentStatus(ctx context.Context, id string, status domain.DocumentStatus, errMsg *string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE documents SET status=$1, error_message=$2 WHERE id=$3`,
		status, errMsg, id,
	)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "update document status", err)
	}
	return nil
}

func (r *Repository) CommitDocument(ctx context.Context, doc *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`UPDATE documents SET
			page_count=$1, author=$2, creation_date=$3, detected_language=$4,
			ingested_at=$5, status=$6, error_message=$7
		 WHERE id=$8`,
		doc.PageCount, doc.Author, doc.CreationDate, doc.DetectedLanguage,
		doc.IngestedAt, doc.Status, doc.ErrorMessage, doc.ID,
	)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "commit document", err)
	}
	return nil
}

func (r *Repository) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	doc := &domain.Document{}
	err := r.db.QueryRow(ctx,
		`SELECT id, workspace_id, document_name, media_type, sha256, raw_storage_path,
			page_count, author, creation_date, detected_language, size_bytes, ingested_at,
			status, error_message
		 FROM documents WHERE id=$1`, id,
	).Scan(&doc.ID, &doc.WorkspaceID, &doc.DocumentName, &doc.MediaType, &doc.SHA256, &doc.RawStoragePath,
		&doc.PageCount, &doc.Author, &doc.CreationDate, &doc.DetectedLanguage, &doc.SizeBytes, &doc.IngestedAt,
		&doc.Status, &doc.ErrorMessage)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apierr.NotFoundf("document not found: %s", id)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "get document", err)
	}
	return doc, nil
}

// FindDocumentBySHA256 returns the first document in a workspace with
// the given content hash, for duplicate-upload detection.
func (r *Repository) FindDocumentBySHA256(ctx context.Context, workspaceID, sha256 string) (*domain.Document, error) {
	var id string
	err := r.db.QueryRow(ctx,
		`SELECT id FROM documents WHERE workspace_id=$1 AND sha256=$2 ORDER BY id LIMIT 1`,
		workspaceID, sha256,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apierr.NotFoundf("no document with matching content in workspace %s", workspaceID)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "find document by sha256", err)
	}
	return r.GetDocument(ctx, id)
}

func (r *Repository) ListDocumentsByWorkspace(ctx context.Context, workspaceID string) ([]*domain.Document, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, workspace_id, document_name, media_type, sha256, raw_storage_path,
			page_count, author, creation_date, detected_language, size_bytes, ingested_at,
			status, error_message
		 FROM documents WHERE workspace_id=$1 ORDER BY id`, workspaceID,
	)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "list documents", err)
	}
	defer rows.Close()

	var out []*domain.Document
	for rows.Next() {
		doc := &domain.Document{}
		if err := rows.Scan(&doc.ID, &doc.WorkspaceID, &doc.DocumentName, &doc.MediaType, &doc.SHA256, &doc.RawStoragePath,
			&doc.PageCount, &doc.Author, &doc.CreationDate, &doc.DetectedLanguage, &doc.SizeBytes, &doc.IngestedAt,
			&doc.Status, &doc.ErrorMessage); err != nil {
			return nil, apierr.Wrap(apierr.Internal, "scan document", err)
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (r *Repository) CountDocumentsByWorkspace(ctx context.Context, workspaceID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM documents WHERE workspace_id=$1 AND status='SUCCESS'`, workspaceID,
	).Scan(&n)
	if err != nil {
		return 0, apierr.Wrap(apierr.Transient, "count documents", err)
	}
	return n, nil
}

func (r *Repository) DeleteDocument(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM document_events WHERE document_id=$1`, id); err != nil {
		return apierr.Wrap(apierr.Transient, "delete document events", err)
	}
	_, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id=$1`, id)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "delete document", err)
	}
	return nil
}

// UpsertStageEvent writes a DocumentEvent, relying on a unique index
// on (document_id, stage) to enforce the at-most-one-row invariant.
func (r *Repository) UpsertStageEvent(ctx context.Context, ev *domain.DocumentEvent) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO document_events (document_id, stage, status, started_at, finished_at, duration_ms)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (document_id, stage) DO UPDATE SET
			status=EXCLUDED.status, finished_at=EXCLUDED.finished_at, duration_ms=EXCLUDED.duration_ms`,
		ev.DocumentID, ev.Stage, ev.Status, ev.StartedAt, ev.FinishedAt, ev.DurationMS,
	)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "upsert stage event", err)
	}
	return nil
}

func (r *Repository) ListStageEvents(ctx context.Context, documentID string) ([]*domain.DocumentEvent, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, document_id, stage, status, started_at, finished_at, duration_ms
		 FROM document_events WHERE document_id=$1 ORDER BY started_at`, documentID,
	)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "list stage events", err)
	}
	defer rows.Close()

	var out []*domain.DocumentEvent
	for rows.Next() {
		ev := &domain.DocumentEvent{}
		if err := rows.Scan(&ev.ID, &ev.DocumentID, &ev.Stage, &ev.Status, &ev.StartedAt, &ev.FinishedAt, &ev.DurationMS); err != nil {
			return nil, apierr.Wrap(apierr.Internal, "scan stage event", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *Repository) CreateSession(ctx context.Context, s *domain.ChatSession) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO chat_sessions (id, workspace_id, created_at) VALUES ($1,$2,$3)`,
		s.ID, s.WorkspaceID, s.CreatedAt,
	)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "create session", err)
	}
	return nil
}

func (r *Repository) GetSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	s := &domain.ChatSession{}
	err := r.db.QueryRow(ctx,
		`SELECT id, workspace_id, created_at FROM chat_sessions WHERE id=$1`, id,
	).Scan(&s.ID, &s.WorkspaceID, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apierr.NotFoundf("session not found: %s", id)
	}
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "get session", err)
	}
	return s, nil
}

func (r *Repository) ListSessionsByWorkspace(ctx context.Context, workspaceID string) ([]*domain.ChatSession, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, workspace_id, created_at FROM chat_sessions WHERE workspace_id=$1 ORDER BY created_at`, workspaceID,
	)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "list sessions", err)
	}
	defer rows.Close()

	var out []*domain.ChatSession
	for rows.Next() {
		s := &domain.ChatSession{}
		if err := rows.Scan(&s.ID, &s.WorkspaceID, &s.CreatedAt); err != nil {
			return nil, apierr.Wrap(apierr.Internal, "scan session", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) DeleteSessionsByWorkspace(ctx context.Context, workspaceID string) error {
	stmts := []string{
		`DELETE FROM chat_message_sources WHERE message_id IN (
			SELECT m.id FROM chat_messages m
			JOIN chat_sessions s ON m.session_id = s.id WHERE s.workspace_id=$1)`,
		`DELETE FROM chat_messages WHERE session_id IN (
			SELECT id FROM chat_sessions WHERE workspace_id=$1)`,
		`DELETE FROM chat_sessions WHERE workspace_id=$1`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(ctx, stmt, workspaceID); err != nil {
			return apierr.Wrap(apierr.Transient, "delete sessions", err)
		}
	}
	return nil
}

func (r *Repository) CreateMessage(ctx context.Context, m *domain.ChatMessage) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO chat_messages (id, session_id, role, content, created_at) VALUES ($1,$2,$3,$4,$5)`,
		m.ID, m.SessionID, m.Role, m.Content, m.CreatedAt,
	)
	if err != nil {
		return apierr.Wrap(apierr.Transient, "create message", err)
	}
	return nil
}

func (r *Repository) ListMessagesBySession(ctx context.Context, sessionID string) ([]*domain.ChatMessage, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, role, content, created_at FROM chat_messages
		 WHERE session_id=$1 ORDER BY created_at ASC`, sessionID,
	)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "list messages", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (r *Repository) RecentMessages(ctx context.Context, sessionID string, n int) ([]*domain.ChatMessage, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, session_id, role, content, created_at FROM
			(SELECT id, session_id, role, content, created_at FROM chat_messages
			 WHERE session_id=$1 ORDER BY created_at DESC LIMIT $2) recent
		 ORDER BY created_at ASC`, sessionID, n,
	)
	if err != nil {
		return nil, apierr.Wrap(apierr.Transient, "recent messages", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]*domain.ChatMessage, error) {
	var out []*domain.ChatMessage
	for rows.Next() {
		m := &domain.ChatMessage{}
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, apierr.Wrap(apierr.Internal, "scan message", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) CreateMessageSources(ctx context.Context, sources []*domain.ChatMessageSource) error {
	for _, src := range sources {
		_, err := r.db.Exec(ctx,
			`INSERT INTO chat_message_sources (id, message_id, document_id, document_name, page_start, page_end, snippet)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			src.ID, src.MessageID, src.DocumentID, src.DocumentName, src.PageStart, src.PageEnd, src.Snippet,
		)
		if err != nil {
			return apierr.Wrap(apierr.Transient, "create message source", err)
		}
	}
	return nil
}

