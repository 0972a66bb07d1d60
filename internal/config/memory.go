package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/brain/pkg/log"
)

const (
	EmbeddingHashing = "hashing"
	EmbeddingOpenAI  = "openai"

	defaultHashingDims = 256
	defaultOpenAIDims  = 1536
)

type MemoryConfig struct {
	EmbeddingProvider string        `env:"EMBEDDING_PROVIDER" envDefault:"hashing"`
	EmbeddingModel    string        `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`
	// Zero picks the provider default, see Dimensions.
	EmbeddingDims     int           `env:"EMBEDDING_DIMENSIONS"`
	EmbeddingTimeout  time.Duration `env:"EMBEDDING_TIMEOUT" envDefault:"10s"`
	MaxInputTokens    int           `env:"EMBEDDING_MAX_INPUT_TOKENS" envDefault:"8000"`
	CacheMaxCost      int64         `env:"EMBEDDING_CACHE_BYTES" envDefault:"67108864"`

	RetrievalK       int           `env:"MEMORY_RETRIEVAL_K" envDefault:"5"`
	RetrievalTimeout time.Duration `env:"MEMORY_RETRIEVAL_TIMEOUT" envDefault:"5s"`
}

func NewMemoryConfig(ctx context.Context) *MemoryConfig {
	c := &MemoryConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Memory config")
	}
	return c
}

// Dimensions is the configured vector length, or the provider default.
func (c MemoryConfig) Dimensions() int {
	if c.EmbeddingDims > 0 {
		return c.EmbeddingDims
	}
	if c.EmbeddingProvider == EmbeddingOpenAI {
		return defaultOpenAIDims
	}
	return defaultHashingDims
}
