package memory

import (
	"context"
	"time"

	"github.com/sandevgo/brain/pkg/log"
)

const IndexRetryInterval = 30 * time.Second

// IndexWorker retries vector index writes that failed while storing.
type IndexWorker struct {
	engine   *Engine
	interval time.Duration
}

func NewIndexWorker(engine *Engine) *IndexWorker {
	return &IndexWorker{
		engine:   engine,
		interval: IndexRetryInterval,
	}
}

func (w *IndexWorker) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx).With().Str("component", "index_worker").Logger()
	logger.Info().Msg("starting memory index worker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down memory index worker")
			return nil
		case <-ticker.C:
			if left := w.engine.flushPending(ctx); left > 0 {
				logger.Warn().Int("pending", left).Msg("memories still missing from index")
			}
		}
	}
}

func (w *IndexWorker) Shutdown(ctx context.Context) error {
	return nil
}
