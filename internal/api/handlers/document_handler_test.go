package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	middleware "github.com/paperpilot/paperpilot/internal/api/middlewares"
	"github.com/paperpilot/paperpilot/internal/config"
	"github.com/paperpilot/paperpilot/internal/core/coretest"
	"github.com/paperpilot/paperpilot/internal/models"
)

type recordingIngestor struct {
	enqueued []string
}

func (i *recordingIngestor) Start(ctx context.Context, numWorkers int) {}
func (i *recordingIngestor) Enqueue(docID string) {
	i.enqueued = append(i.enqueued, docID)
}
func (i *recordingIngestor) ProcessOne(ctx context.Context, docID string) error { return nil }

type recordingStore struct {
	saved   []string
	deleted []string
}

func (s *recordingStore) Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	s.saved = append(s.saved, key)
	return nil
}

func (s *recordingStore) Fetch(ctx context.Context, key string) (string, func(), error) {
	return "", func() {}, nil
}

func (s *recordingStore) Delete(ctx context.Context, key string) error {
	s.deleted = append(s.deleted, key)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:     "test-secret",
		MaxUploadSize: 10 << 20,
		MaxDocRetries: 3,
	}
}

// withUser stands in for the JWT middleware.
func withUser(userID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), middleware.UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func documentRouter(h *DocumentHandler, userID string) http.Handler {
	r := chi.NewRouter()
	r.Use(withUser(userID))
	r.Post("/documents", h.UploadDocument)
	r.Get("/documents", h.GetDocuments)
	r.Get("/documents/{id}/status", h.GetDocumentStatus)
	r.Post("/documents/{id}/retry", h.RetryDocument)
	r.Delete("/documents/{id}", h.DeleteDocument)
	return r
}

func pdfUploadRequest(t *testing.T, filename, contentType string, body []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="document"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUploadDocumentAccepted(t *testing.T) {
	db := coretest.NewFakeDB()
	store := &recordingStore{}
	ing := &recordingIngestor{}
	h := NewDocumentHandler(db, store, ing, testConfig(), zap.NewNop())
	router := documentRouter(h, "user-1")

	req := pdfUploadRequest(t, "paper.pdf", "application/pdf", []byte("%PDF-1.4\nfake body"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	docID := resp["id"].(string)
	assert.Equal(t, models.StatusProcessing, resp["status"])
	assert.Equal(t, "paper.pdf", resp["original_name"])

	require.Contains(t, db.Documents, docID)
	doc := db.Documents[docID]
	assert.Equal(t, "user-1", doc.UserID)
	assert.Equal(t, 3, doc.MaxRetries)
	assert.Equal(t, []string{docID}, ing.enqueued)
	require.Len(t, store.saved, 1)
	assert.Equal(t, doc.StorageKey, store.saved[0])
}

func TestUploadDocumentRejectsNonPDFContentType(t *testing.T) {
	db := coretest.NewFakeDB()
	ing := &recordingIngestor{}
	h := NewDocumentHandler(db, &recordingStore{}, ing, testConfig(), zap.NewNop())
	router := documentRouter(h, "user-1")

	req := pdfUploadRequest(t, "notes.txt", "text/plain", []byte("just text"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, db.Documents)
	assert.Empty(t, ing.enqueued)
}

func TestUploadDocumentRejectsBadSignature(t *testing.T) {
	db := coretest.NewFakeDB()
	store := &recordingStore{}
	ing := &recordingIngestor{}
	h := NewDocumentHandler(db, store, ing, testConfig(), zap.NewNop())
	router := documentRouter(h, "user-1")

	// Right extension and content type, wrong bytes. No record may exist
	// afterwards.
	req := pdfUploadRequest(t, "fake.pdf", "application/pdf", []byte("MZ executable"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, db.Documents)
	assert.Empty(t, store.saved)
	assert.Empty(t, ing.enqueued)
}

func TestUploadDocumentRejectsMissingFile(t *testing.T) {
	h := NewDocumentHandler(coretest.NewFakeDB(), &recordingStore{}, &recordingIngestor{}, testConfig(), zap.NewNop())
	router := documentRouter(h, "user-1")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("something", "else"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetDocumentStatus(t *testing.T) {
	db := coretest.NewFakeDB()
	now := time.Now()
	db.Documents["doc-1"] = &models.Document{
		ID: "doc-1", UserID: "user-1",
		Status: models.StatusFailed, LastError: "no text found in PDF",
		RetryCount: 1, MaxRetries: 3, ProcessedAt: &now,
	}
	h := NewDocumentHandler(db, &recordingStore{}, &recordingIngestor{}, testConfig(), zap.NewNop())
	router := documentRouter(h, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/documents/doc-1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, models.StatusFailed, resp["status"])
	assert.Equal(t, "no text found in PDF", resp["last_error"])
	assert.Equal(t, true, resp["can_retry"])
	assert.Equal(t, float64(1), resp["retry_count"])
}

func TestGetDocumentStatusHidesOtherUsersDocuments(t *testing.T) {
	db := coretest.NewFakeDB()
	db.Documents["doc-1"] = &models.Document{ID: "doc-1", UserID: "someone-else", Status: models.StatusReady}
	h := NewDocumentHandler(db, &recordingStore{}, &recordingIngestor{}, testConfig(), zap.NewNop())
	router := documentRouter(h, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/documents/doc-1/status", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRetryDocument(t *testing.T) {
	db := coretest.NewFakeDB()
	db.Documents["doc-1"] = &models.Document{
		ID: "doc-1", UserID: "user-1",
		Status: models.StatusFailed, RetryCount: 0, MaxRetries: 3,
	}
	ing := &recordingIngestor{}
	h := NewDocumentHandler(db, &recordingStore{}, ing, testConfig(), zap.NewNop())
	router := documentRouter(h, "user-1")

	req := httptest.NewRequest(http.MethodPost, "/documents/doc-1/retry", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.Equal(t, models.StatusRetrying, db.Documents["doc-1"].Status)
	assert.Equal(t, 1, db.Documents["doc-1"].RetryCount)
	assert.Equal(t, []string{"doc-1"}, ing.enqueued)
}

func TestRetryDocumentNotEligible(t *testing.T) {
	tests := []struct {
		name string
		doc  models.Document
	}{
		{"ready document", models.Document{Status: models.StatusReady, MaxRetries: 3}},
		{"retries exhausted", models.Document{Status: models.StatusFailed, RetryCount: 3, MaxRetries: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := coretest.NewFakeDB()
			doc := tt.doc
			doc.ID, doc.UserID = "doc-1", "user-1"
			db.Documents["doc-1"] = &doc
			ing := &recordingIngestor{}
			h := NewDocumentHandler(db, &recordingStore{}, ing, testConfig(), zap.NewNop())
			router := documentRouter(h, "user-1")

			req := httptest.NewRequest(http.MethodPost, "/documents/doc-1/retry", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusConflict, rec.Code)
			assert.Empty(t, ing.enqueued)
		})
	}
}

func TestDeleteDocument(t *testing.T) {
	db := coretest.NewFakeDB()
	db.Documents["doc-1"] = &models.Document{
		ID: "doc-1", UserID: "user-1", StorageKey: "user-1/doc-1/paper.pdf",
		Status: models.StatusReady,
	}
	db.Chunks["doc-1"] = []models.DocumentChunk{{ID: "c1", DocumentID: "doc-1"}}
	store := &recordingStore{}
	h := NewDocumentHandler(db, store, &recordingIngestor{}, testConfig(), zap.NewNop())
	router := documentRouter(h, "user-1")

	req := httptest.NewRequest(http.MethodDelete, "/documents/doc-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, db.Documents)
	assert.Empty(t, db.Chunks["doc-1"])
	assert.Equal(t, []string{"user-1/doc-1/paper.pdf"}, store.deleted)
}

func TestGetDocumentsListsOnlyOwn(t *testing.T) {
	db := coretest.NewFakeDB()
	db.Documents["doc-1"] = &models.Document{ID: "doc-1", UserID: "user-1", Status: models.StatusReady}
	db.Documents["doc-2"] = &models.Document{ID: "doc-2", UserID: "user-2", Status: models.StatusReady}
	h := NewDocumentHandler(db, &recordingStore{}, &recordingIngestor{}, testConfig(), zap.NewNop())
	router := documentRouter(h, "user-1")

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var docs []models.Document
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &docs))
	require.Len(t, docs, 1)
	assert.Equal(t, "doc-1", docs[0].ID)
}
