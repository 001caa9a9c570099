package handlers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	middleware "github.com/paperpilot/paperpilot/internal/api/middlewares"
	"github.com/paperpilot/paperpilot/internal/config"
	"github.com/paperpilot/paperpilot/internal/core"
	"github.com/paperpilot/paperpilot/internal/core/ingestion"
	"github.com/paperpilot/paperpilot/internal/models"
	"github.com/paperpilot/paperpilot/internal/storage"
)

var pdfMagic = []byte("%PDF-")

type DocumentHandler struct {
	dbclient core.DbClient
	store    storage.Store
	ingestor ingestion.Ingestor
	cfg      *config.Config
	logger   *zap.Logger
}

func NewDocumentHandler(dbclient core.DbClient, store storage.Store, ing ingestion.Ingestor, cfg *config.Config, logger *zap.Logger) *DocumentHandler {
	return &DocumentHandler{dbclient: dbclient, store: store, ingestor: ing, cfg: cfg, logger: logger}
}

// UploadDocument accepts a PDF, stores the file, creates the document record
// in processing state and enqueues it for ingestion. The response returns
// before ingestion finishes; clients poll the status endpoint.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadSize); err != nil {
		http.Error(w, "file exceeds the upload limit", http.StatusRequestEntityTooLarge)
		return
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		http.Error(w, "no file found to upload", http.StatusBadRequest)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if contentType != "application/pdf" || ext != ".pdf" {
		http.Error(w, fmt.Sprintf("only PDF uploads are accepted, got %s (%s)", contentType, ext), http.StatusBadRequest)
		return
	}

	// Check the magic bytes before any record exists; a wrong signature must
	// never reach the pipeline.
	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(file, head); err != nil || !bytes.Equal(head, pdfMagic) {
		http.Error(w, "file does not have a valid PDF signature", http.StatusBadRequest)
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		http.Error(w, "could not read upload", http.StatusInternalServerError)
		return
	}

	docID := uuid.NewString()
	cleanName := filepath.Base(header.Filename)
	storageKey := fmt.Sprintf("%s/%s/%s", userID, docID, cleanName)

	if err := h.store.Save(r.Context(), storageKey, file, header.Size, contentType); err != nil {
		h.logger.Error("file save failed", zap.String("document_id", docID), zap.Error(err))
		http.Error(w, "could not store uploaded file", http.StatusInternalServerError)
		return
	}

	doc := &models.Document{
		ID:           docID,
		UserID:       userID,
		FileName:     cleanName,
		OriginalName: header.Filename,
		StorageKey:   storageKey,
		FileSize:     header.Size,
		MimeType:     contentType,
		Status:       models.StatusProcessing,
		MaxRetries:   h.cfg.MaxDocRetries,
		UploadedAt:   time.Now(),
	}

	if err := h.dbclient.CreateDocument(r.Context(), doc); err != nil {
		h.logger.Error("document insert failed", zap.String("document_id", docID), zap.Error(err))
		_ = h.store.Delete(r.Context(), storageKey)
		http.Error(w, "failed to store document metadata", http.StatusInternalServerError)
		return
	}

	h.ingestor.Enqueue(doc.ID)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":            doc.ID,
		"original_name": doc.OriginalName,
		"status":        doc.Status,
		"uploaded_at":   doc.UploadedAt,
	})
}

func (h *DocumentHandler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return
	}

	documents, err := h.dbclient.ListDocumentsByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, documents)
}

// GetDocumentStatus is the polling endpoint paired with the async upload.
func (h *DocumentHandler) GetDocumentStatus(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":           doc.ID,
		"status":       doc.Status,
		"total_pages":  doc.TotalPages,
		"total_chunks": doc.TotalChunks,
		"last_error":   doc.LastError,
		"retry_count":  doc.RetryCount,
		"can_retry":    doc.CanRetry(),
		"processed_at": doc.ProcessedAt,
	})
}

// RetryDocument re-enqueues a failed document if it still has retries left.
func (h *DocumentHandler) RetryDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	if !doc.CanRetry() {
		http.Error(w, "document is not eligible for retry", http.StatusConflict)
		return
	}
	if err := h.dbclient.MarkDocumentRetrying(r.Context(), doc.ID); err != nil {
		http.Error(w, "document is not eligible for retry", http.StatusConflict)
		return
	}

	h.ingestor.Enqueue(doc.ID)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":     doc.ID,
		"status": models.StatusRetrying,
	})
}

// DeleteDocument removes the record (chunks cascade) and the stored file.
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.ownedDocument(w, r)
	if !ok {
		return
	}

	if err := h.dbclient.DeleteDocument(r.Context(), doc.ID); err != nil {
		http.Error(w, "could not delete document", http.StatusInternalServerError)
		return
	}
	if err := h.store.Delete(r.Context(), doc.StorageKey); err != nil {
		h.logger.Error("stored file delete failed",
			zap.String("document_id", doc.ID), zap.Error(err))
	}

	w.WriteHeader(http.StatusNoContent)
}

// ownedDocument loads the {id} route param and enforces ownership.
func (h *DocumentHandler) ownedDocument(w http.ResponseWriter, r *http.Request) (*models.Document, bool) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "user_id not found in context", http.StatusUnauthorized)
		return nil, false
	}

	doc, err := h.dbclient.GetDocumentByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, false
	}
	if doc == nil || doc.UserID != userID {
		http.Error(w, "document not found", http.StatusNotFound)
		return nil, false
	}
	return doc, true
}
