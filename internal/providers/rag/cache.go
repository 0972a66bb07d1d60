package rag

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// CachedProvider memoizes embeddings by model and exact text.
type CachedProvider struct {
	next  Provider
	model string
	cache *ristretto.Cache
}

func NewCachedProvider(next Provider, model string, maxCost int64) (*CachedProvider, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100_000,
		MaxCost:     maxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedProvider{next: next, model: model, cache: cache}, nil
}

func (c *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.model + "\x00" + text
	if v, ok := c.cache.Get(key); ok {
		return clone(v.([]float32)), nil
	}

	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, clone(vec), int64(4*len(vec)))
	return vec, nil
}

// Wait blocks until buffered writes are applied.
func (c *CachedProvider) Wait() {
	c.cache.Wait()
}

func (c *CachedProvider) Close() error {
	c.cache.Close()
	return nil
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
