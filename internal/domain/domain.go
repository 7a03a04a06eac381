// Package domain holds the entity types shared by every adapter and
// service in docuforge. It has no external dependencies: adapters
// translate these types to and from whatever storage or wire format
// they speak.
package domain

import "time"

// DocumentStatus tracks a Document through the ingestion pipeline.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "PENDING"
	DocumentQueued     DocumentStatus = "QUEUED"
	DocumentProcessing DocumentStatus = "PROCESSING"
	DocumentSuccess    DocumentStatus = "SUCCESS"
	DocumentFailed     DocumentStatus = "FAILED"
	DocumentSkipped    DocumentStatus = "SKIPPED"
)

// Stage identifies one step of the ingestion pipeline for a document.
type Stage string

const (
	StageExtracting Stage = "EXTRACTING"
	StageChunking   Stage = "CHUNKING"
	StageEmbedding  Stage = "EMBEDDING"
	StageClassify   Stage = "CLASSIFICATION"
	StageLangDetect Stage = "LANG_DETECT"
)

// MessageRole distinguishes user turns from assistant turns.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Workspace is the isolation boundary for documents, sessions, and
// retrieval.
type Workspace struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Document is one ingested binary file plus its derived metadata.
// Content, chunks, and vectors live in RawStorage and VectorStore
// respectively; this struct is the metadata row.
type Document struct {
	ID               string
	WorkspaceID      string
	DocumentName     string
	MediaType        string
	SHA256           string
	RawStoragePath   string
	PageCount        int
	Author           *string
	CreationDate     *time.Time
	DetectedLanguage *string
	SizeBytes        int64
	IngestedAt       *time.Time
	Status           DocumentStatus
	ErrorMessage     *string
}

// DocumentEvent records the start/end of one pipeline stage for one
// document. At most one row exists per (DocumentID, Stage).
type DocumentEvent struct {
	ID         int64
	DocumentID string
	Stage      Stage
	Status     DocumentStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	DurationMS *int64
}

// ChatSession is an ordered sequence of messages within one workspace.
type ChatSession struct {
	ID          string
	WorkspaceID string
	CreatedAt   time.Time
}

// ChatMessage is one turn of a ChatSession.
type ChatMessage struct {
	ID        string
	SessionID string
	Role      MessageRole
	Content   string
	CreatedAt time.Time
}

// ChatMessageSource attaches a grounding passage to an assistant
// message.
type ChatMessageSource struct {
	ID           string
	MessageID    string
	DocumentID   string
	DocumentName string
	PageStart    int
	PageEnd      int
	Snippet      string
}

// VectorPayload is the metadata carried alongside every indexed
// embedding. WorkspaceID is mandatory so search can be filtered per
// workspace.
type VectorPayload struct {
	WorkspaceID  string
	DocumentID   string
	DocumentName string
	PageStart    int
	PageEnd      int
	Snippet      string
}
