package llm

import (
	"context"

	"github.com/sandevgo/brain/internal/config"
	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/pkg/log"
	"github.com/sandevgo/brain/pkg/retry"
	"github.com/sashabaranov/go-openai"
)

// NewProvider returns the chat model, or nil when no API key is set. The
// assistant then answers with templates only.
func NewProvider(ctx context.Context, cfg *config.OpenAIConfig, client *openai.Client, retrier *retry.Retrier) core.ChatModel {
	if !cfg.Enabled() || client == nil {
		log.FromCtx(ctx).Warn().Msg("OPENAI_API_KEY not set, chat replies use templates")
		return nil
	}

	log.FromCtx(ctx).Info().
		Str("model", cfg.ChatModel).
		Msg("starting llm provider")

	return NewOpenAI(client, cfg, retrier)
}
