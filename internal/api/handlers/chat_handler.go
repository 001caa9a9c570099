package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	middleware "github.com/paperpilot/paperpilot/internal/api/middlewares"
	"github.com/paperpilot/paperpilot/internal/core"
	"github.com/paperpilot/paperpilot/internal/core/llm"
	"github.com/paperpilot/paperpilot/internal/models"
)

const topKChunks = 5

type ChatHandler struct {
	dbclient core.DbClient
	embedder core.Embedder
	llm      core.LLMProvider
	logger   *zap.Logger
}

func NewChatHandler(db core.DbClient, emb core.Embedder, provider core.LLMProvider, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{dbclient: db, embedder: emb, llm: provider, logger: logger}
}

type chatRequest struct {
	DocumentID string `json:"document_id"`
	Query      string `json:"query"`
}

type chatSource struct {
	Text       string  `json:"text"`
	PageNumber int     `json:"page_number"`
	Score      float64 `json:"score"`
}

// QueryDocument answers a question about one ready document: embed the query,
// find the closest chunks, and let the model answer grounded on them.
func (h *ChatHandler) QueryDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := middleware.UserID(ctx)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	doc, err := h.dbclient.GetDocumentByID(ctx, req.DocumentID)
	if err != nil || doc == nil || doc.UserID != userID {
		http.Error(w, "document not found", http.StatusNotFound)
		return
	}
	if doc.Status != models.StatusReady {
		http.Error(w, fmt.Sprintf("document is not ready (status: %s)", doc.Status), http.StatusConflict)
		return
	}

	queryVec, err := h.embedder.Embed(ctx, req.Query, llm.TaskQuery)
	if err != nil {
		h.logger.Error("query embedding failed", zap.Error(err))
		http.Error(w, "embedding failed", http.StatusBadGateway)
		return
	}

	matches, err := h.dbclient.SearchDocumentChunks(ctx, req.DocumentID, queryVec, topKChunks)
	if err != nil {
		h.logger.Error("vector search failed", zap.Error(err))
		http.Error(w, "search failed", http.StatusInternalServerError)
		return
	}

	var sb strings.Builder
	sources := make([]chatSource, 0, len(matches))
	for _, m := range matches {
		sb.WriteString(m.Chunk.Text)
		sb.WriteString("\n---\n")
		sources = append(sources, chatSource{
			Text:       m.Chunk.Text,
			PageNumber: m.Chunk.PageNumber,
			Score:      m.Score,
		})
	}

	systemPrompt := "You are an assistant answering questions based only on the given document content. If the answer is not in the content, say 'I cannot find this in the document.'"
	userPrompt := fmt.Sprintf("Context:\n%s\n\nQuestion: %s", sb.String(), req.Query)

	answer, err := h.llm.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		h.logger.Error("answer generation failed", zap.Error(err))
		http.Error(w, "answer generation failed", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"answer":  answer,
		"sources": sources,
	})
}
