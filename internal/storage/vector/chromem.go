package vector

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/pkg/log"
)

const (
	metaUserID    = "user_id"
	metaSource    = "source"
	metaIntent    = "intent"
	metaCreatedAt = "created_at"
)

var errNoEmbeddingFunc = errors.New("index stores precomputed embeddings only")

// ChromemIndex keeps one chromem collection per user so a query can only
// ever see that user's vectors. Cosine similarity; chromem normalizes
// vectors on insert, so the scores equal the dot product of unit vectors.
type ChromemIndex struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
}

func NewChromemIndex() *ChromemIndex {
	return &ChromemIndex{
		db:          chromem.NewDB(),
		collections: make(map[string]*chromem.Collection),
	}
}

func collectionName(userID string) string {
	return "user_" + userID
}

// refuseEmbedding keeps chromem from silently calling a remote model.
func refuseEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

func (s *ChromemIndex) collection(userID string, create bool) (*chromem.Collection, error) {
	s.mu.RLock()
	col, ok := s.collections[userID]
	s.mu.RUnlock()
	if ok || !create {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if col, ok := s.collections[userID]; ok {
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection(collectionName(userID), map[string]string{metaUserID: userID}, refuseEmbedding)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	s.collections[userID] = col
	return col, nil
}

func (s *ChromemIndex) Upsert(ctx context.Context, rec core.MemoryRecord) error {
	if rec.UserID == "" {
		return fmt.Errorf("memory %d has no owner: %w", rec.ID, core.ErrInvalidInput)
	}
	if len(rec.Embedding) == 0 {
		return fmt.Errorf("memory %d has no embedding: %w", rec.ID, core.ErrInvalidInput)
	}

	col, err := s.collection(rec.UserID, true)
	if err != nil {
		return err
	}

	// chromem normalizes in place, keep the caller's slice intact
	emb := make([]float32, len(rec.Embedding))
	copy(emb, rec.Embedding)

	doc := chromem.Document{
		ID:        strconv.FormatInt(rec.ID, 10),
		Content:   rec.Content,
		Embedding: emb,
		Metadata: map[string]string{
			metaUserID:    rec.UserID,
			metaSource:    string(rec.Source),
			metaIntent:    rec.Intent,
			metaCreatedAt: rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}

	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query returns the k most similar records of userID, most similar first,
// newer first among equal scores.
func (s *ChromemIndex) Query(ctx context.Context, userID string, vector []float32, k int) ([]core.ScoredMemory, error) {
	if k <= 0 {
		return nil, nil
	}

	col, err := s.collection(userID, false)
	if err != nil || col == nil {
		return nil, err
	}

	count := col.Count()
	if count == 0 {
		return nil, nil
	}

	query := make([]float32, len(vector))
	copy(query, vector)

	// chromem cuts ties at the k boundary arbitrarily; widen the window
	// until the k-th score is strictly above everything left out.
	n := min(count, 2*k)
	for {
		results, err := col.QueryEmbedding(ctx, query, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("chromem query: %w", err)
		}

		scored := make([]core.ScoredMemory, 0, len(results))
		for _, r := range results {
			m, err := toScored(r)
			if err != nil {
				log.FromCtx(ctx).Warn().Err(err).Str("doc_id", r.ID).Msg("skipping malformed vector document")
				continue
			}
			// metadata must agree with the collection
			if m.UserID != userID {
				continue
			}
			scored = append(scored, m)
		}
		sortScored(scored)

		if n == count || len(scored) <= k || scored[k-1].Similarity > lowest(results) {
			if len(scored) > k {
				scored = scored[:k]
			}
			return scored, nil
		}
		n = min(count, n*2)
	}
}

// Drop forgets every vector of userID.
func (s *ChromemIndex) Drop(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[userID]; !ok {
		return nil
	}
	if err := s.db.DeleteCollection(collectionName(userID)); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	delete(s.collections, userID)
	return nil
}

func (s *ChromemIndex) Count(userID string) int {
	col, _ := s.collection(userID, false)
	if col == nil {
		return 0
	}
	return col.Count()
}

func lowest(results []chromem.Result) float32 {
	low := results[0].Similarity
	for _, r := range results[1:] {
		if r.Similarity < low {
			low = r.Similarity
		}
	}
	return low
}

func sortScored(s []core.ScoredMemory) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Similarity != s[j].Similarity {
			return s[i].Similarity > s[j].Similarity
		}
		if !s[i].CreatedAt.Equal(s[j].CreatedAt) {
			return s[i].CreatedAt.After(s[j].CreatedAt)
		}
		return s[i].ID > s[j].ID
	})
}

func toScored(r chromem.Result) (core.ScoredMemory, error) {
	id, err := strconv.ParseInt(r.ID, 10, 64)
	if err != nil {
		return core.ScoredMemory{}, fmt.Errorf("document id: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, r.Metadata[metaCreatedAt])
	if err != nil {
		return core.ScoredMemory{}, fmt.Errorf("document created_at: %w", err)
	}

	return core.ScoredMemory{
		MemoryRecord: core.MemoryRecord{
			ID:        id,
			UserID:    r.Metadata[metaUserID],
			Content:   r.Content,
			Source:    core.MemorySource(r.Metadata[metaSource]),
			Intent:    r.Metadata[metaIntent],
			Embedding: r.Embedding,
			CreatedAt: createdAt,
		},
		Similarity: r.Similarity,
	}, nil
}
