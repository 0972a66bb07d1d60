package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sandevgo/brain/internal/config"
	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/pkg/log"
)

const defaultListLimit = 20

// Engine is the long-term memory of every user. The relational store is the
// source of truth; the vector index only serves similarity queries and is
// rebuilt from the store on startup.
type Engine struct {
	repo     core.MemoryRepository
	index    core.VectorIndex
	embedder core.Embedder
	clock    *monotonicClock

	retrievalTimeout time.Duration

	// writes is shared by index writers and held exclusively by Erase.
	writes sync.RWMutex

	mu      sync.Mutex
	pending []core.MemoryRecord
}

func NewEngine(
	repo core.MemoryRepository,
	index core.VectorIndex,
	embedder core.Embedder,
	cfg *config.MemoryConfig,
) *Engine {
	return &Engine{
		repo:             repo,
		index:            index,
		embedder:         embedder,
		clock:            newMonotonicClock(time.Now),
		retrievalTimeout: cfg.RetrievalTimeout,
	}
}

func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.embedder.Embed(ctx, text)
}

// Store appends a new record. It never overwrites an existing one.
func (e *Engine) Store(ctx context.Context, userID, content string, source core.MemorySource, intent string) (core.MemoryRecord, error) {
	content = strings.TrimSpace(content)
	switch {
	case userID == "":
		return core.MemoryRecord{}, fmt.Errorf("%w: empty user id", core.ErrInvalidInput)
	case content == "":
		return core.MemoryRecord{}, fmt.Errorf("%w: empty memory content", core.ErrInvalidInput)
	case !source.Valid():
		return core.MemoryRecord{}, fmt.Errorf("%w: memory source %q", core.ErrInvalidInput, source)
	}

	vec, err := e.embedder.Embed(ctx, content)
	if err != nil {
		return core.MemoryRecord{}, fmt.Errorf("failed to embed memory: %w", err)
	}

	e.writes.RLock()
	defer e.writes.RUnlock()

	rec, err := e.repo.AddMemory(ctx, core.MemoryRecord{
		UserID:    userID,
		Content:   content,
		Source:    source,
		Intent:    intent,
		Embedding: vec,
		CreatedAt: e.clock.Next(),
	})
	if err != nil {
		return core.MemoryRecord{}, err
	}

	if err := e.index.Upsert(ctx, rec); err != nil {
		// persisted already, the index worker catches up
		log.FromCtx(ctx).Warn().Err(err).
			Str("user_id", userID).
			Int64("memory_id", rec.ID).
			Msg("failed to index memory, queued for retry")
		e.queueIndex(rec)
	}

	return rec, nil
}

// Retrieve returns up to k memories of userID ranked by similarity to query.
// Failures degrade to an empty result.
func (e *Engine) Retrieve(ctx context.Context, userID, query string, k int) ([]core.ScoredMemory, error) {
	out := []core.ScoredMemory{}
	if userID == "" || k <= 0 || strings.TrimSpace(query) == "" {
		return out, nil
	}

	logger := log.FromCtx(ctx).With().Str("user_id", userID).Logger()

	if e.retrievalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.retrievalTimeout)
		defer cancel()
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to embed query, continuing without memories")
		return out, nil
	}

	found, err := e.index.Query(ctx, userID, vec, k)
	if err != nil {
		logger.Warn().Err(err).Msg("memory search failed, continuing without memories")
		return out, nil
	}

	return append(out, found...), nil
}

// List returns the newest records of userID first.
func (e *Engine) List(ctx context.Context, userID string, limit int) ([]core.MemoryRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return e.repo.ListMemories(ctx, userID, limit)
}

func (e *Engine) Count(ctx context.Context, userID string) (int, error) {
	return e.repo.CountMemories(ctx, userID)
}

// Reindex loads every stored record into the vector index.
func (e *Engine) Reindex(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	start := time.Now()

	var n int
	err := e.repo.ScanMemories(ctx, func(rec core.MemoryRecord) error {
		e.clock.Observe(rec.CreatedAt)
		if err := e.index.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("failed to index memory %d: %w", rec.ID, err)
		}
		n++
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info().
		Int("records", n).
		Dur("took", time.Since(start)).
		Msg("memory index rebuilt")
	return nil
}

// Erase removes everything the engine holds for userID. purge deletes the
// relational rows and runs while no store or index retry is in flight, so
// neither can leave a record behind for the erased user.
func (e *Engine) Erase(ctx context.Context, userID string, purge func(context.Context) error) error {
	e.writes.Lock()
	defer e.writes.Unlock()

	if purge != nil {
		if err := purge(ctx); err != nil {
			return err
		}
	}

	e.mu.Lock()
	kept := e.pending[:0]
	for _, rec := range e.pending {
		if rec.UserID != userID {
			kept = append(kept, rec)
		}
	}
	e.pending = kept
	e.mu.Unlock()

	if err := e.index.Drop(ctx, userID); err != nil {
		return fmt.Errorf("failed to drop memory index: %w", err)
	}
	return nil
}

func (e *Engine) queueIndex(rec core.MemoryRecord) {
	e.mu.Lock()
	e.pending = append(e.pending, rec)
	e.mu.Unlock()
}

// flushPending retries index writes that failed during Store and returns
// how many are still waiting.
func (e *Engine) flushPending(ctx context.Context) int {
	e.writes.RLock()
	defer e.writes.RUnlock()

	e.mu.Lock()
	batch := e.pending
	e.pending = nil
	e.mu.Unlock()

	var failed []core.MemoryRecord
	for _, rec := range batch {
		if err := e.index.Upsert(ctx, rec); err != nil {
			log.FromCtx(ctx).Debug().Err(err).Int64("memory_id", rec.ID).Msg("index retry failed")
			failed = append(failed, rec)
		}
	}

	e.mu.Lock()
	e.pending = append(failed, e.pending...)
	n := len(e.pending)
	e.mu.Unlock()
	return n
}
