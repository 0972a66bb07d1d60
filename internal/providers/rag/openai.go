package rag

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/pkg/retry"
	"github.com/sashabaranov/go-openai"
)

type OpenAIProvider struct {
	client    *openai.Client
	model     string
	dims      int
	maxTokens int
}

func NewOpenAIProvider(client *openai.Client, model string, dims, maxTokens int) *OpenAIProvider {
	return &OpenAIProvider{
		client:    client,
		model:     model,
		dims:      dims,
		maxTokens: maxTokens,
	}
}

// shortenable models accept a dimensions parameter; older ones reject it.
func shortenable(model string) bool {
	return strings.HasPrefix(model, "text-embedding-3")
}

func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("nothing to embed: %w", core.ErrInvalidInput)
	}

	req := openai.EmbeddingRequest{
		Input: []string{TruncateTokens(text, p.maxTokens)},
		Model: openai.EmbeddingModel(p.model),
	}
	if p.dims > 0 && shortenable(p.model) {
		req.Dimensions = p.dims
	}

	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response has no data")
	}
	return resp.Data[0].Embedding, nil
}

// classifyOpenAIError marks client errors as permanent. Rate limits and
// server errors stay retryable.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && !retryableStatus(apiErr.HTTPStatusCode) {
		return retry.Permanent(fmt.Errorf("openai: %w", err))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && !retryableStatus(reqErr.HTTPStatusCode) {
		return retry.Permanent(fmt.Errorf("openai: %w", err))
	}
	return fmt.Errorf("openai: %w", err)
}

func retryableStatus(code int) bool {
	return code == 0 || code == http.StatusTooManyRequests || code >= 500
}
