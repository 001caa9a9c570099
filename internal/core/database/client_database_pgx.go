package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/paperpilot/paperpilot/internal/config"
	"github.com/paperpilot/paperpilot/internal/core"
	"github.com/paperpilot/paperpilot/internal/errs"
	"github.com/paperpilot/paperpilot/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Sensible pool settings for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Users

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, name, email, password_hash, verified, otp_hash, otp_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		user.ID, user.Name, user.Email, user.PasswordHash, user.Verified, user.OTPHash, user.OTPExpiresAt)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, name, email, password_hash, verified,
		       COALESCE(otp_hash, ''), COALESCE(otp_expires_at, to_timestamp(0)),
		       COALESCE(reset_hash, ''), COALESCE(reset_expires_at, to_timestamp(0)),
		       created_at, updated_at
		FROM users WHERE email = $1
	`
	return c.scanUser(c.db.QueryRowContext(ctx, q, email))
}

func (c *DatabaseClient) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	const q = `
		SELECT id, name, email, password_hash, verified,
		       COALESCE(otp_hash, ''), COALESCE(otp_expires_at, to_timestamp(0)),
		       COALESCE(reset_hash, ''), COALESCE(reset_expires_at, to_timestamp(0)),
		       created_at, updated_at
		FROM users WHERE id = $1
	`
	return c.scanUser(c.db.QueryRowContext(ctx, q, id))
}

func (c *DatabaseClient) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Verified,
		&u.OTPHash, &u.OTPExpiresAt, &u.ResetHash, &u.ResetExpiresAt,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *DatabaseClient) UpdateUserVerification(ctx context.Context, id string, verified bool) error {
	const q = `
		UPDATE users
		SET verified = $2, otp_hash = NULL, otp_expires_at = NULL, updated_at = now()
		WHERE id = $1
	`
	return c.execOne(ctx, q, id, verified)
}

func (c *DatabaseClient) SetUserOTP(ctx context.Context, id, otpHash string, expiresAt time.Time) error {
	const q = `
		UPDATE users SET otp_hash = $2, otp_expires_at = $3, updated_at = now()
		WHERE id = $1
	`
	return c.execOne(ctx, q, id, otpHash, expiresAt)
}

func (c *DatabaseClient) SetUserResetToken(ctx context.Context, id, resetHash string, expiresAt time.Time) error {
	const q = `
		UPDATE users SET reset_hash = $2, reset_expires_at = $3, updated_at = now()
		WHERE id = $1
	`
	return c.execOne(ctx, q, id, resetHash, expiresAt)
}

func (c *DatabaseClient) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	const q = `
		UPDATE users
		SET password_hash = $2, reset_hash = NULL, reset_expires_at = NULL, updated_at = now()
		WHERE id = $1
	`
	return c.execOne(ctx, q, id, passwordHash)
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, user_id, file_name, original_name, storage_key, file_size, mime_type,
			 status, max_retries, uploaded_at, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, now()), now(), now())
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.UserID, doc.FileName, doc.OriginalName, doc.StorageKey,
		doc.FileSize, doc.MimeType, doc.Status, doc.MaxRetries, doc.UploadedAt)
	return err
}

const documentColumns = `
	id, user_id, file_name, original_name, storage_key, file_size, mime_type,
	status, total_pages, total_chunks, retry_count, max_retries,
	COALESCE(last_error, ''), attempt, uploaded_at, processed_at, created_at, updated_at
`

func (c *DatabaseClient) scanDocument(row interface{ Scan(...any) error }) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID, &d.UserID, &d.FileName, &d.OriginalName, &d.StorageKey, &d.FileSize, &d.MimeType,
		&d.Status, &d.TotalPages, &d.TotalChunks, &d.RetryCount, &d.MaxRetries,
		&d.LastError, &d.Attempt, &d.UploadedAt, &d.ProcessedAt, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	doc, err := c.scanDocument(c.db.QueryRowContext(ctx, q, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *DatabaseClient) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	q := `SELECT ` + documentColumns + ` FROM documents WHERE user_id = $1 ORDER BY uploaded_at DESC`
	rows, err := c.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		d, err := c.scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// DeleteDocument removes the record; chunks go with it via the FK cascade.
func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	return c.execOne(ctx, `DELETE FROM documents WHERE id = $1`, id)
}

// BeginIngestAttempt bumps the attempt stamp and moves the document into
// processing in one statement, returning the new stamp.
func (c *DatabaseClient) BeginIngestAttempt(ctx context.Context, id string) (int, error) {
	const q = `
		UPDATE documents
		SET attempt = attempt + 1, status = $2, last_error = NULL, updated_at = now()
		WHERE id = $1
		RETURNING attempt
	`
	var attempt int
	err := c.db.QueryRowContext(ctx, q, id, models.StatusProcessing).Scan(&attempt)
	if err == sql.ErrNoRows {
		return 0, errs.Wrapf(errs.ErrNotFound, "document %s", id)
	}
	if err != nil {
		return 0, err
	}
	return attempt, nil
}

// MarkDocumentReady finalizes a successful attempt. The attempt guard makes
// the write a no-op when a newer attempt has started in the meantime.
func (c *DatabaseClient) MarkDocumentReady(ctx context.Context, id string, attempt, totalPages, totalChunks int) error {
	const q = `
		UPDATE documents
		SET status = $3, total_pages = $4, total_chunks = $5,
		    last_error = NULL, processed_at = now(), updated_at = now()
		WHERE id = $1 AND attempt = $2
	`
	_, err := c.db.ExecContext(ctx, q, id, attempt, models.StatusReady, totalPages, totalChunks)
	return err
}

func (c *DatabaseClient) MarkDocumentFailed(ctx context.Context, id string, attempt int, lastError string) error {
	const q = `
		UPDATE documents
		SET status = $3, last_error = $4, processed_at = now(), updated_at = now()
		WHERE id = $1 AND attempt = $2
	`
	_, err := c.db.ExecContext(ctx, q, id, attempt, models.StatusFailed, lastError)
	return err
}

// MarkDocumentRetrying moves a failed document back into the pipeline,
// consuming one retry. The status predicate keeps concurrent retry requests
// from double-counting.
func (c *DatabaseClient) MarkDocumentRetrying(ctx context.Context, id string) error {
	const q = `
		UPDATE documents
		SET status = $2, retry_count = retry_count + 1, updated_at = now()
		WHERE id = $1 AND status = $3 AND retry_count < max_retries
	`
	res, err := c.db.ExecContext(ctx, q, id, models.StatusRetrying, models.StatusFailed)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.Wrapf(errs.ErrConflict, "document %s is not eligible for retry", id)
	}
	return nil
}

// FailStaleProcessing marks documents stuck in processing or retrying longer
// than olderThan as failed, returning how many were swept.
func (c *DatabaseClient) FailStaleProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	const q = `
		UPDATE documents
		SET status = $1, last_error = 'processing timed out', processed_at = now(), updated_at = now()
		WHERE status IN ($2, $3) AND updated_at < now() - $4::interval
	`
	interval := fmt.Sprintf("%d seconds", int(olderThan.Seconds()))
	res, err := c.db.ExecContext(ctx, q, models.StatusFailed, models.StatusProcessing, models.StatusRetrying, interval)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Chunks

// InsertDocumentChunks inserts chunks in a single transaction.
func (c *DatabaseClient) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, chunk_index, page_number, text, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
	`
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.ChunkIndex, ch.PageNumber, ch.Text, vec,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// DeleteChunksForAttempt deletes a document's chunks only while the given
// attempt still owns the document. Once a newer attempt has bumped the stamp
// the delete matches nothing.
func (c *DatabaseClient) DeleteChunksForAttempt(ctx context.Context, documentID string, attempt int) error {
	const q = `
		DELETE FROM document_chunks
		WHERE document_id = $1
		  AND EXISTS (SELECT 1 FROM documents WHERE id = $1 AND attempt = $2)
	`
	_, err := c.db.ExecContext(ctx, q, documentID, attempt)
	return err
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, chunk_index, page_number, text, embedding, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY chunk_index ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var (
			ch  models.DocumentChunk
			emb pgvector.Vector
		)
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.ChunkIndex, &ch.PageNumber, &ch.Text, &emb, &ch.CreatedAt); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		out = append(out, ch)
	}
	return out, rows.Err()
}

// SearchDocumentChunks finds the top-k chunks of a document closest to the
// query embedding by cosine distance, highest similarity first.
func (c *DatabaseClient) SearchDocumentChunks(ctx context.Context, documentID string, queryVec []float32, limit int) ([]models.ChunkMatch, error) {
	const q = `
		SELECT id, document_id, chunk_index, page_number, text, embedding, created_at,
		       1 - (embedding <=> $2) AS score
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, documentID, vec, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChunkMatch
	for rows.Next() {
		var (
			m   models.ChunkMatch
			emb pgvector.Vector
		)
		if err := rows.Scan(
			&m.Chunk.ID, &m.Chunk.DocumentID, &m.Chunk.ChunkIndex, &m.Chunk.PageNumber,
			&m.Chunk.Text, &emb, &m.Chunk.CreatedAt, &m.Score,
		); err != nil {
			return nil, err
		}
		m.Chunk.Embedding = emb.Slice()
		out = append(out, m)
	}
	return out, rows.Err()
}

// execOne runs an UPDATE/DELETE expected to touch exactly one row.
func (c *DatabaseClient) execOne(ctx context.Context, q string, args ...any) error {
	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.Wrapf(errs.ErrNotFound, "no row matched")
	}
	return nil
}
