package core

import (
	"context"
	"time"

	"github.com/paperpilot/paperpilot/internal/models"
)

// DbClient defines all persistence operations the higher layers need.
// It abstracts Postgres/pgvector so handlers and the ingestion pipeline
// never depend on a specific database.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	UpdateUserVerification(ctx context.Context, id string, verified bool) error
	SetUserOTP(ctx context.Context, id, otpHash string, expiresAt time.Time) error
	SetUserResetToken(ctx context.Context, id, resetHash string, expiresAt time.Time) error
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error

	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	// BeginIngestAttempt bumps the document's attempt stamp, moves it to
	// processing and returns the new stamp. All later writes for the same
	// ingestion run carry this stamp.
	BeginIngestAttempt(ctx context.Context, id string) (int, error)
	MarkDocumentReady(ctx context.Context, id string, attempt, totalPages, totalChunks int) error
	MarkDocumentFailed(ctx context.Context, id string, attempt int, lastError string) error
	MarkDocumentRetrying(ctx context.Context, id string) error
	FailStaleProcessing(ctx context.Context, olderThan time.Duration) (int, error)

	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error
	// DeleteChunksForAttempt removes a document's chunks on behalf of one
	// ingestion attempt. The write is guarded on the attempt stamp, so a
	// superseded attempt cannot wipe chunks a newer attempt persisted.
	DeleteChunksForAttempt(ctx context.Context, documentID string, attempt int) error
	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)
	SearchDocumentChunks(ctx context.Context, documentID string, queryVec []float32, limit int) ([]models.ChunkMatch, error)

	Close() error
}

// Embedder turns text into a fixed-dimension vector. The task type biases the
// remote model toward indexing or querying use ("RETRIEVAL_DOCUMENT" vs
// "RETRIEVAL_QUERY").
type Embedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
}

// LLMProvider generates an answer grounded on a system prompt and user prompt.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
}

// Page is one page of extracted text, in page order.
type Page struct {
	PageNumber int
	Text       string
	CharCount  int
}

// Extractor produces per-page plain text from a stored document file.
type Extractor interface {
	Extract(ctx context.Context, path string) ([]Page, error)
}
