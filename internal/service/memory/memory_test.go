package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sandevgo/brain/internal/config"
	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/internal/providers/rag"
	"github.com/sandevgo/brain/internal/storage/sqldb"
	"github.com/sandevgo/brain/internal/storage/vector"
	"github.com/sandevgo/brain/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockEmbedder struct {
	embedFunc func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.embedFunc(ctx, text)
}

func (m *mockEmbedder) Dimensions() int { return 3 }

type mockIndex struct {
	upsertFunc func(ctx context.Context, rec core.MemoryRecord) error
	queryFunc  func(ctx context.Context, userID string, vector []float32, k int) ([]core.ScoredMemory, error)
	dropFunc   func(ctx context.Context, userID string) error
}

func (m *mockIndex) Upsert(ctx context.Context, rec core.MemoryRecord) error {
	return m.upsertFunc(ctx, rec)
}

func (m *mockIndex) Query(ctx context.Context, userID string, vector []float32, k int) ([]core.ScoredMemory, error) {
	return m.queryFunc(ctx, userID, vector, k)
}

func (m *mockIndex) Drop(ctx context.Context, userID string) error {
	if m.dropFunc == nil {
		return nil
	}
	return m.dropFunc(ctx, userID)
}

var testCfg = &config.MemoryConfig{RetrievalTimeout: 2 * time.Second}

func newRepo(t *testing.T) *sqldb.MemoryRepo {
	t.Helper()
	db, err := sqldb.Open(context.Background(), sqldb.DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return sqldb.NewMemoryRepo(db)
}

func hashingEmbedder() core.Embedder {
	r := retry.NewRetrier(&retry.Config{MaxRetries: 0, BackoffFactor: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})
	return rag.NewEmbedder(rag.NewHashingProvider(256), 256, time.Second, r)
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(newRepo(t), vector.NewChromemIndex(), hashingEmbedder(), testCfg)
}

func TestEngine_SelfMatchRanksFirst(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	texts := []string{
		"dentist appointment on friday at three",
		"the wifi password at the cottage is sunflower42",
		"mom's birthday is on the 12th of march",
	}
	var stored []core.MemoryRecord
	for _, text := range texts {
		rec, err := e.Store(ctx, "u1", text, core.SourceNote, "save_note")
		require.NoError(t, err)
		stored = append(stored, rec)
	}

	got, err := e.Retrieve(ctx, "u1", texts[1], 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, stored[1].ID, got[0].ID)
	assert.InDelta(t, 1.0, got[0].Similarity, 1e-4)

	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Similarity, got[i].Similarity)
	}
}

func TestEngine_UserIsolation(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	_, err := e.Store(ctx, "alice", "alice likes green tea", core.SourceNote, "")
	require.NoError(t, err)
	_, err = e.Store(ctx, "bob", "bob likes green tea", core.SourceNote, "")
	require.NoError(t, err)

	got, err := e.Retrieve(ctx, "bob", "green tea", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0].UserID)

	got, err = e.Retrieve(ctx, "carol", "green tea", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestEngine_TiesPreferNewest(t *testing.T) {
	ctx := context.Background()
	same := &mockEmbedder{embedFunc: func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}}
	e := NewEngine(newRepo(t), vector.NewChromemIndex(), same, testCfg)
	fixed := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	e.clock = newMonotonicClock(func() time.Time { return fixed })

	var ids []int64
	for _, text := range []string{"first", "second", "third", "fourth"} {
		rec, err := e.Store(ctx, "u1", text, core.SourceConversation, "")
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	got, err := e.Retrieve(ctx, "u1", "anything", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ids[3], got[0].ID)
	assert.Equal(t, ids[2], got[1].ID)
	assert.True(t, got[0].CreatedAt.After(got[1].CreatedAt))
}

func TestEngine_RetrieveDegradesToEmpty(t *testing.T) {
	ctx := context.Background()

	t.Run("embedding unavailable", func(t *testing.T) {
		down := &mockEmbedder{embedFunc: func(ctx context.Context, text string) ([]float32, error) {
			return nil, core.ErrEmbeddingUnavailable
		}}
		e := NewEngine(newRepo(t), vector.NewChromemIndex(), down, testCfg)

		got, err := e.Retrieve(ctx, "u1", "anything", 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("index failure", func(t *testing.T) {
		idx := &mockIndex{queryFunc: func(ctx context.Context, userID string, v []float32, k int) ([]core.ScoredMemory, error) {
			return nil, errors.New("index corrupted")
		}}
		e := NewEngine(newRepo(t), idx, hashingEmbedder(), testCfg)

		got, err := e.Retrieve(ctx, "u1", "anything", 5)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestEngine_StoreValidation(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	tests := []struct {
		name    string
		userID  string
		content string
		source  core.MemorySource
	}{
		{name: "no user", userID: "", content: "x", source: core.SourceNote},
		{name: "blank content", userID: "u1", content: "   ", source: core.SourceNote},
		{name: "bad source", userID: "u1", content: "x", source: "gossip"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Store(ctx, tt.userID, tt.content, tt.source, "")
			assert.ErrorIs(t, err, core.ErrInvalidInput)
		})
	}

	down := &mockEmbedder{embedFunc: func(ctx context.Context, text string) ([]float32, error) {
		return nil, core.ErrEmbeddingUnavailable
	}}
	repo := newRepo(t)
	e = NewEngine(repo, vector.NewChromemIndex(), down, testCfg)
	_, err := e.Store(ctx, "u1", "remember me", core.SourceNote, "")
	assert.ErrorIs(t, err, core.ErrEmbeddingUnavailable)

	n, err := repo.CountMemories(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_ReindexRestoresSearch(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	emb := hashingEmbedder()

	first := NewEngine(repo, vector.NewChromemIndex(), emb, testCfg)
	rec, err := first.Store(ctx, "u1", "the spare key is under the flower pot", core.SourceNote, "")
	require.NoError(t, err)

	// fresh process: empty index over the same store
	second := NewEngine(repo, vector.NewChromemIndex(), emb, testCfg)
	got, err := second.Retrieve(ctx, "u1", "spare key", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, second.Reindex(ctx))
	got, err = second.Retrieve(ctx, "u1", "spare key", 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, rec.ID, got[0].ID)

	next, err := second.Store(ctx, "u1", "another note", core.SourceNote, "")
	require.NoError(t, err)
	assert.True(t, next.CreatedAt.After(rec.CreatedAt))
}

func TestEngine_FailedIndexWriteIsRetried(t *testing.T) {
	ctx := context.Background()
	backing := vector.NewChromemIndex()
	fail := true
	idx := &mockIndex{
		upsertFunc: func(ctx context.Context, rec core.MemoryRecord) error {
			if fail {
				return errors.New("index busy")
			}
			return backing.Upsert(ctx, rec)
		},
		queryFunc: backing.Query,
	}
	e := NewEngine(newRepo(t), idx, hashingEmbedder(), testCfg)

	_, err := e.Store(ctx, "u1", "water the plants", core.SourceNote, "")
	require.NoError(t, err)
	assert.Equal(t, 1, e.flushPending(ctx))

	fail = false
	assert.Equal(t, 0, e.flushPending(ctx))

	got, err := e.Retrieve(ctx, "u1", "water the plants", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestEngine_ListAndErase(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)

	for _, text := range []string{"one", "two", "three"} {
		_, err := e.Store(ctx, "u1", text, core.SourceConversation, "small_talk")
		require.NoError(t, err)
	}

	list, err := e.List(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "three", list[0].Content)
	assert.Equal(t, "two", list[1].Content)

	purged := false
	require.NoError(t, e.Erase(ctx, "u1", func(ctx context.Context) error {
		purged = true
		return nil
	}))
	assert.True(t, purged)
	got, err := e.Retrieve(ctx, "u1", "one", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = e.Store(ctx, "u2", "kept", core.SourceNote, "")
	require.NoError(t, err)
	assert.ErrorIs(t, e.Erase(ctx, "u2", func(ctx context.Context) error { return core.ErrUserNotFound }), core.ErrUserNotFound)
	got, err = e.Retrieve(ctx, "u2", "kept", 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestEngine_EraseWaitsForIndexRetry(t *testing.T) {
	ctx := context.Background()

	var (
		mu     sync.Mutex
		events []string
	)
	record := func(ev string) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	}

	fail := true
	entered := make(chan struct{})
	release := make(chan struct{})
	idx := &mockIndex{
		upsertFunc: func(ctx context.Context, rec core.MemoryRecord) error {
			if fail {
				return errors.New("index busy")
			}
			close(entered)
			<-release
			record("upsert")
			return nil
		},
		dropFunc: func(ctx context.Context, userID string) error {
			record("drop")
			return nil
		},
	}
	e := NewEngine(newRepo(t), idx, hashingEmbedder(), testCfg)

	_, err := e.Store(ctx, "u1", "water the plants", core.SourceNote, "")
	require.NoError(t, err)
	fail = false

	flushed := make(chan int)
	go func() { flushed <- e.flushPending(ctx) }()
	<-entered

	erased := make(chan error)
	go func() { erased <- e.Erase(ctx, "u1", nil) }()

	select {
	case <-erased:
		t.Fatal("erase finished while an index retry was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	assert.Equal(t, 0, <-flushed)
	require.NoError(t, <-erased)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"upsert", "drop"}, events)
}

func TestEngine_EraseDropsQueuedRecords(t *testing.T) {
	ctx := context.Background()
	upserts := 0
	idx := &mockIndex{upsertFunc: func(ctx context.Context, rec core.MemoryRecord) error {
		upserts++
		return errors.New("index busy")
	}}
	e := NewEngine(newRepo(t), idx, hashingEmbedder(), testCfg)

	_, err := e.Store(ctx, "u1", "water the plants", core.SourceNote, "")
	require.NoError(t, err)
	require.Equal(t, 1, upserts)

	require.NoError(t, e.Erase(ctx, "u1", nil))
	assert.Equal(t, 0, e.flushPending(ctx))
	assert.Equal(t, 1, upserts)
}

func TestMonotonicClock(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	c := newMonotonicClock(func() time.Time { return now })

	a := c.Next()
	b := c.Next()
	assert.Equal(t, base, a)
	assert.Equal(t, base.Add(time.Microsecond), b)

	// wall clock stepping backwards
	now = base.Add(-time.Hour)
	assert.True(t, c.Next().After(b))

	c.Observe(base.Add(time.Hour))
	assert.True(t, c.Next().After(base.Add(time.Hour)))
}

func TestFormatContext(t *testing.T) {
	assert.Empty(t, FormatContext(nil))

	at := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	out := FormatContext([]core.ScoredMemory{
		{MemoryRecord: core.MemoryRecord{Content: "wifi is sunflower42", Source: core.SourceNote, CreatedAt: at}},
		{MemoryRecord: core.MemoryRecord{Content: "user: hi\nassistant: hello", Source: core.SourceConversation, CreatedAt: at}},
	})

	assert.Contains(t, out, "### Things the user asked you to remember\n- [2026-10-01] wifi is sunflower42")
	assert.Contains(t, out, "### Related past conversations\n- [2026-10-01] user: hi assistant: hello")
}
