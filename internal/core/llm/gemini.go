// Package llm wraps the Gemini API behind the core Embedder and LLMProvider
// interfaces.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/paperpilot/paperpilot/internal/core"
	"github.com/paperpilot/paperpilot/internal/errs"
)

// Task types accepted by the embedding model. Document text is embedded for
// indexing, user questions for retrieval; the model biases the vector
// accordingly.
const (
	TaskDocument = "RETRIEVAL_DOCUMENT"
	TaskQuery    = "RETRIEVAL_QUERY"
)

type GeminiClient struct {
	client     *genai.Client
	embedModel string
	genModel   string
	embedDim   int32
	// maxChars caps embedding input length; longer text is silently truncated
	// before the request goes out.
	maxChars int
}

func NewGeminiClient(ctx context.Context, apiKey, embedModel, genModel string, embedDim, maxChars int) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is empty")
	}
	cl, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiClient{
		client:     cl,
		embedModel: embedModel,
		genModel:   genModel,
		embedDim:   int32(embedDim),
		maxChars:   maxChars,
	}, nil
}

var (
	_ core.Embedder    = (*GeminiClient)(nil)
	_ core.LLMProvider = (*GeminiClient)(nil)
)

// Embed returns a fixed-dimension vector for text. Empty text is rejected
// before any network call. Remote failures come back wrapped as ErrEmbedding,
// with rate limits and server errors additionally marked transient so the
// caller can retry them.
func (g *GeminiClient) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errs.Wrapf(errs.ErrInvalidInput, "text for embedding is empty")
	}

	if runes := []rune(text); len(runes) > g.maxChars {
		text = string(runes[:g.maxChars])
	}

	cfg := &genai.EmbedContentConfig{
		TaskType:             taskType,
		OutputDimensionality: &g.embedDim,
	}
	resp, err := g.client.Models.EmbedContent(
		ctx,
		g.embedModel,
		[]*genai.Content{{Parts: []*genai.Part{{Text: text}}}},
		cfg,
	)
	if err != nil {
		return nil, wrapRemote(err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, errs.Wrapf(errs.ErrEmbedding, "no embedding values returned")
	}
	return resp.Embeddings[0].Values, nil
}

// Generate answers userPrompt grounded on systemPrompt.
func (g *GeminiClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var cfg *genai.GenerateContentConfig
	if systemPrompt != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
		}
	}
	resp, err := g.client.Models.GenerateContent(
		ctx,
		g.genModel,
		[]*genai.Content{{Parts: []*genai.Part{{Text: userPrompt}}}},
		cfg,
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// wrapRemote folds any remote failure into ErrEmbedding. HTTP 429 and 5xx are
// retryable; everything else fails fast.
func wrapRemote(err error) error {
	wrapped := errs.Wrap(errs.ErrEmbedding, err)
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError {
			return errs.Transient(wrapped)
		}
		return wrapped
	}
	// Network-level failures (no API response at all) are worth retrying.
	return errs.Transient(wrapped)
}
