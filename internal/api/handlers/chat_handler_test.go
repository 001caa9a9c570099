package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	middleware "github.com/paperpilot/paperpilot/internal/api/middlewares"
	"github.com/paperpilot/paperpilot/internal/core/coretest"
	"github.com/paperpilot/paperpilot/internal/models"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (e *stubEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	return e.vec, e.err
}

type stubLLM struct {
	answer     string
	userPrompt string
}

func (l *stubLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	l.userPrompt = userPrompt
	return l.answer, nil
}

func chatRequestFor(t *testing.T, userID string, body any) *http.Request {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/chat/query", bytes.NewReader(buf))
	ctx := context.WithValue(req.Context(), middleware.UserIDKey, userID)
	return req.WithContext(ctx)
}

func TestQueryDocumentAnswersWithSources(t *testing.T) {
	db := coretest.NewFakeDB()
	db.Documents["doc-1"] = &models.Document{ID: "doc-1", UserID: "user-1", Status: models.StatusReady}
	db.SearchResults = []models.ChunkMatch{
		{Chunk: models.DocumentChunk{Text: "Relevant passage.", PageNumber: 3}, Score: 0.91},
		{Chunk: models.DocumentChunk{Text: "Second passage.", PageNumber: 7}, Score: 0.84},
	}
	llmStub := &stubLLM{answer: "The document says X."}
	h := NewChatHandler(db, &stubEmbedder{vec: []float32{1, 2, 3}}, llmStub, zap.NewNop())

	rec := httptest.NewRecorder()
	h.QueryDocument(rec, chatRequestFor(t, "user-1", map[string]string{
		"document_id": "doc-1", "query": "what does it say?",
	}))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp struct {
		Answer  string `json:"answer"`
		Sources []struct {
			Text       string  `json:"text"`
			PageNumber int     `json:"page_number"`
			Score      float64 `json:"score"`
		} `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "The document says X.", resp.Answer)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, 3, resp.Sources[0].PageNumber)
	assert.InDelta(t, 0.91, resp.Sources[0].Score, 1e-9)

	assert.Contains(t, llmStub.userPrompt, "Relevant passage.")
	assert.Contains(t, llmStub.userPrompt, "what does it say?")
}

func TestQueryDocumentRejectsUnreadyDocument(t *testing.T) {
	db := coretest.NewFakeDB()
	db.Documents["doc-1"] = &models.Document{ID: "doc-1", UserID: "user-1", Status: models.StatusProcessing}
	h := NewChatHandler(db, &stubEmbedder{vec: []float32{1}}, &stubLLM{}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.QueryDocument(rec, chatRequestFor(t, "user-1", map[string]string{
		"document_id": "doc-1", "query": "anything",
	}))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestQueryDocumentHidesOtherUsersDocuments(t *testing.T) {
	db := coretest.NewFakeDB()
	db.Documents["doc-1"] = &models.Document{ID: "doc-1", UserID: "someone-else", Status: models.StatusReady}
	h := NewChatHandler(db, &stubEmbedder{vec: []float32{1}}, &stubLLM{}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.QueryDocument(rec, chatRequestFor(t, "user-1", map[string]string{
		"document_id": "doc-1", "query": "anything",
	}))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestQueryDocumentRequiresQuery(t *testing.T) {
	db := coretest.NewFakeDB()
	db.Documents["doc-1"] = &models.Document{ID: "doc-1", UserID: "user-1", Status: models.StatusReady}
	h := NewChatHandler(db, &stubEmbedder{vec: []float32{1}}, &stubLLM{}, zap.NewNop())

	rec := httptest.NewRecorder()
	h.QueryDocument(rec, chatRequestFor(t, "user-1", map[string]string{
		"document_id": "doc-1", "query": "   ",
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
