package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sandevgo/brain/internal/config"
	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/pkg/retry"
	"github.com/sashabaranov/go-openai"
)

// OpenAI implements core.ChatModel on the chat completions API. Any
// OpenAI compatible endpoint works through OPENAI_BASE_URL.
type OpenAI struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	retrier     *retry.Retrier
}

func NewClient(cfg *config.OpenAIConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

func NewOpenAI(client *openai.Client, cfg *config.OpenAIConfig, retrier *retry.Retrier) *OpenAI {
	if retrier == nil {
		retrier = retry.NewDefaultRetrier()
	}
	return &OpenAI{
		client:      client,
		model:       cfg.ChatModel,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		retrier:     retrier,
	}
}

func (o *OpenAI) Complete(ctx context.Context, messages []core.Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		MaxTokens:   o.maxTokens,
		Temperature: o.temperature,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	var out string
	err := o.retrier.Do(ctx, func() error {
		cctx, cancel := context.WithTimeout(ctx, o.timeout)
		defer cancel()

		resp, err := o.client.CreateChatCompletion(cctx, req)
		if err != nil {
			return classify(err)
		}
		if len(resp.Choices) == 0 {
			return retry.Permanent(errors.New("no choices in chat completion"))
		}
		out = strings.TrimSpace(resp.Choices[0].Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	return out, nil
}

func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && !retryable(apiErr.HTTPStatusCode) {
		return retry.Permanent(err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && !retryable(reqErr.HTTPStatusCode) {
		return retry.Permanent(err)
	}
	return err
}

func retryable(code int) bool {
	return code == 0 || code == http.StatusTooManyRequests || code >= 500
}
