package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/pkg/log"
	"github.com/sandevgo/brain/pkg/retry"
)

// Provider is a raw embedding backend.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Embedder puts a timeout, retries and a dimension check around a
// Provider. Every failure it returns wraps core.ErrEmbeddingUnavailable.
type Embedder struct {
	provider Provider
	dims     int
	timeout  time.Duration
	retrier  *retry.Retrier
}

func NewEmbedder(provider Provider, dims int, timeout time.Duration, retrier *retry.Retrier) *Embedder {
	if retrier == nil {
		retrier = retry.NewDefaultRetrier()
	}
	return &Embedder{
		provider: provider,
		dims:     dims,
		timeout:  timeout,
		retrier:  retrier,
	}
}

func (e *Embedder) Dimensions() int {
	return e.dims
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	attempt := 0

	err := e.retrier.Do(ctx, func() error {
		attempt++
		actx, cancel := context.WithTimeout(ctx, e.timeout)
		defer cancel()

		v, err := e.provider.Embed(actx, text)
		if err != nil {
			if errors.Is(err, core.ErrInvalidInput) {
				return retry.Permanent(err)
			}
			log.FromCtx(ctx).Debug().Err(err).Int("attempt", attempt).Msg("embedding attempt failed")
			return err
		}
		if len(v) != e.dims {
			return retry.Permanent(fmt.Errorf("provider returned %d dimensions, want %d", len(v), e.dims))
		}
		vec = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingUnavailable, err)
	}
	return vec, nil
}
