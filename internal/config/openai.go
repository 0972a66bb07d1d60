package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/brain/pkg/log"
)

type OpenAIConfig struct {
	APIKey      string        `env:"OPENAI_API_KEY"`
	BaseURL     string        `env:"OPENAI_BASE_URL"`
	ChatModel   string        `env:"OPENAI_CHAT_MODEL" envDefault:"gpt-4o-mini"`
	MaxTokens   int           `env:"OPENAI_MAX_TOKENS" envDefault:"800"`
	Temperature float32       `env:"OPENAI_TEMPERATURE" envDefault:"0.4"`
	Timeout     time.Duration `env:"OPENAI_TIMEOUT" envDefault:"30s"`
}

func NewOpenAIConfig(ctx context.Context) *OpenAIConfig {
	c := &OpenAIConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse OpenAI config")
	}
	return c
}

func (c OpenAIConfig) Enabled() bool {
	return c.APIKey != ""
}
