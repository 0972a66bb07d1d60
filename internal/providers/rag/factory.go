package rag

import (
	"fmt"

	"github.com/sandevgo/brain/internal/config"
	"github.com/sandevgo/brain/pkg/retry"
	"github.com/sashabaranov/go-openai"
)

// NewFromConfig builds the configured embedder. The returned close func
// releases the cache.
func NewFromConfig(cfg *config.MemoryConfig, client *openai.Client, retrier *retry.Retrier) (*Embedder, func() error, error) {
	var (
		provider Provider
		model    string
		dims     = cfg.Dimensions()
	)

	switch cfg.EmbeddingProvider {
	case config.EmbeddingHashing:
		provider = NewHashingProvider(dims)
		model = fmt.Sprintf("hashing-%d", dims)
	case config.EmbeddingOpenAI:
		if client == nil {
			return nil, nil, fmt.Errorf("embedding provider %q needs OPENAI_API_KEY", cfg.EmbeddingProvider)
		}
		provider = NewOpenAIProvider(client, cfg.EmbeddingModel, dims, cfg.MaxInputTokens)
		model = cfg.EmbeddingModel
	default:
		return nil, nil, fmt.Errorf("unknown embedding provider: %s", cfg.EmbeddingProvider)
	}

	cached, err := NewCachedProvider(provider, model, cfg.CacheMaxCost)
	if err != nil {
		return nil, nil, err
	}

	return NewEmbedder(cached, dims, cfg.EmbeddingTimeout, retrier), cached.Close, nil
}
