// Package coretest provides in-memory test doubles for the core interfaces.
package coretest

import (
	"context"
	"sync"
	"time"

	"github.com/paperpilot/paperpilot/internal/core"
	"github.com/paperpilot/paperpilot/internal/errs"
	"github.com/paperpilot/paperpilot/internal/models"
)

// FakeDB is an in-memory core.DbClient. It keeps users, documents and chunks
// in maps and mimics the attempt/status semantics of the real client closely
// enough for pipeline and handler tests.
type FakeDB struct {
	mu        sync.Mutex
	Users     map[string]*models.User     // by ID
	Documents map[string]*models.Document // by ID
	Chunks    map[string][]models.DocumentChunk

	// SearchResults is returned verbatim by SearchDocumentChunks.
	SearchResults []models.ChunkMatch

	// InsertChunksErr, when set, makes InsertDocumentChunks fail.
	InsertChunksErr error

	// RespectCtx makes writes fail on a finished context, like a real driver.
	RespectCtx bool
}

func NewFakeDB() *FakeDB {
	return &FakeDB{
		Users:     map[string]*models.User{},
		Documents: map[string]*models.Document{},
		Chunks:    map[string][]models.DocumentChunk{},
	}
}

var _ core.DbClient = (*FakeDB)(nil)

func (f *FakeDB) ctxErr(ctx context.Context) error {
	if f.RespectCtx {
		return ctx.Err()
	}
	return nil
}

func (f *FakeDB) CreateUser(ctx context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.Users {
		if u.Email == user.Email {
			return errs.Wrapf(errs.ErrConflict, "email taken")
		}
	}
	cp := *user
	f.Users[user.ID] = &cp
	return nil
}

func (f *FakeDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.Users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *FakeDB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.Users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (f *FakeDB) UpdateUserVerification(ctx context.Context, id string, verified bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.Users[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.Verified = verified
	u.OTPHash = ""
	return nil
}

func (f *FakeDB) SetUserOTP(ctx context.Context, id, otpHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.Users[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.OTPHash = otpHash
	u.OTPExpiresAt = expiresAt
	return nil
}

func (f *FakeDB) SetUserResetToken(ctx context.Context, id, resetHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.Users[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.ResetHash = resetHash
	u.ResetExpiresAt = expiresAt
	return nil
}

func (f *FakeDB) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.Users[id]
	if !ok {
		return errs.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.ResetHash = ""
	return nil
}

func (f *FakeDB) CreateDocument(ctx context.Context, doc *models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *doc
	f.Documents[doc.ID] = &cp
	return nil
}

func (f *FakeDB) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.Documents[id]; ok {
		cp := *d
		return &cp, nil
	}
	return nil, nil
}

func (f *FakeDB) ListDocumentsByUser(ctx context.Context, userID string) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Document
	for _, d := range f.Documents {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *FakeDB) DeleteDocument(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.Documents[id]; !ok {
		return errs.ErrNotFound
	}
	delete(f.Documents, id)
	delete(f.Chunks, id)
	return nil
}

func (f *FakeDB) BeginIngestAttempt(ctx context.Context, id string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.Documents[id]
	if !ok {
		return 0, errs.Wrapf(errs.ErrNotFound, "document %s", id)
	}
	d.Attempt++
	d.Status = models.StatusProcessing
	d.LastError = ""
	return d.Attempt, nil
}

func (f *FakeDB) MarkDocumentReady(ctx context.Context, id string, attempt, totalPages, totalChunks int) error {
	if err := f.ctxErr(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.Documents[id]
	if !ok || d.Attempt != attempt {
		return nil
	}
	now := time.Now()
	d.Status = models.StatusReady
	d.TotalPages = totalPages
	d.TotalChunks = totalChunks
	d.LastError = ""
	d.ProcessedAt = &now
	return nil
}

func (f *FakeDB) MarkDocumentFailed(ctx context.Context, id string, attempt int, lastError string) error {
	if err := f.ctxErr(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.Documents[id]
	if !ok || d.Attempt != attempt {
		return nil
	}
	now := time.Now()
	d.Status = models.StatusFailed
	d.LastError = lastError
	d.ProcessedAt = &now
	return nil
}

func (f *FakeDB) MarkDocumentRetrying(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.Documents[id]
	if !ok || d.Status != models.StatusFailed || d.RetryCount >= d.MaxRetries {
		return errs.Wrapf(errs.ErrConflict, "document %s is not eligible for retry", id)
	}
	d.Status = models.StatusRetrying
	d.RetryCount++
	return nil
}

func (f *FakeDB) FailStaleProcessing(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

func (f *FakeDB) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if err := f.ctxErr(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InsertChunksErr != nil {
		return f.InsertChunksErr
	}
	for _, ch := range chunks {
		f.Chunks[ch.DocumentID] = append(f.Chunks[ch.DocumentID], ch)
	}
	return nil
}

// DeleteChunksForAttempt mirrors the real client: the delete is a no-op once
// a newer attempt owns the document.
func (f *FakeDB) DeleteChunksForAttempt(ctx context.Context, documentID string, attempt int) error {
	if err := f.ctxErr(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.Documents[documentID]
	if !ok || d.Attempt != attempt {
		return nil
	}
	delete(f.Chunks, documentID)
	return nil
}

func (f *FakeDB) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.DocumentChunk(nil), f.Chunks[documentID]...), nil
}

func (f *FakeDB) SearchDocumentChunks(ctx context.Context, documentID string, queryVec []float32, limit int) ([]models.ChunkMatch, error) {
	return f.SearchResults, nil
}

func (f *FakeDB) Close() error { return nil }
