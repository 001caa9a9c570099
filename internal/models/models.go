package models

import (
	"time"
)

// Document lifecycle states.
const (
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
	StatusRetrying   = "retrying"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	Email        string `db:"email" json:"email"`
	PasswordHash string `db:"password_hash" json:"-"`
	Verified     bool   `db:"verified" json:"verified"`

	OTPHash        string    `db:"otp_hash" json:"-"`
	OTPExpiresAt   time.Time `db:"otp_expires_at" json:"-"`
	ResetHash      string    `db:"reset_hash" json:"-"`
	ResetExpiresAt time.Time `db:"reset_expires_at" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Document represents one uploaded PDF owned by a user.
type Document struct {
	ID           string `db:"id" json:"id"`
	UserID       string `db:"user_id" json:"user_id"`
	FileName     string `db:"file_name" json:"file_name"`
	OriginalName string `db:"original_name" json:"original_name"`
	StorageKey   string `db:"storage_key" json:"-"`
	FileSize     int64  `db:"file_size" json:"file_size"`
	MimeType     string `db:"mime_type" json:"mime_type"`

	Status      string `db:"status" json:"status"` // processing | ready | failed | retrying
	TotalPages  int    `db:"total_pages" json:"total_pages"`
	TotalChunks int    `db:"total_chunks" json:"total_chunks"`
	RetryCount  int    `db:"retry_count" json:"retry_count"`
	MaxRetries  int    `db:"max_retries" json:"max_retries"`
	LastError   string `db:"last_error" json:"last_error,omitempty"`
	// Attempt increases every time ingestion starts for this document; status
	// writes and chunk cleanup are guarded on it so a superseded attempt can
	// never clobber a newer one.
	Attempt int `db:"attempt" json:"-"`

	UploadedAt  time.Time  `db:"uploaded_at" json:"uploaded_at"`
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// CanRetry reports whether a failed document is still eligible for another
// ingestion attempt. Advisory: the retry endpoint checks it, nothing enforces
// it inside the pipeline.
func (d *Document) CanRetry() bool {
	return d.Status == StatusFailed && d.RetryCount < d.MaxRetries
}

// DocumentChunk represents one embedded text chunk from a document.
// ChunkIndex is document-global and monotonically increasing, assigned once
// by the chunker across all pages.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	Text       string    `db:"text" json:"text"`
	PageNumber int       `db:"page_number" json:"page_number"`
	Embedding  []float32 `db:"embedding" json:"-"` // pgvector column, fixed dimension
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ChunkMatch is one vector-search hit with its similarity score.
type ChunkMatch struct {
	Chunk DocumentChunk `json:"chunk"`
	Score float64       `json:"score"`
}
