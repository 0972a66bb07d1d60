package assembler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sandevgo/brain/internal/config"
	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/internal/providers/rag"
	"github.com/sandevgo/brain/internal/service/intent"
	"github.com/sandevgo/brain/internal/service/memory"
	"github.com/sandevgo/brain/internal/service/token"
	"github.com/sandevgo/brain/internal/storage/sqldb"
	"github.com/sandevgo/brain/internal/storage/vector"
	"github.com/sandevgo/brain/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockTokens struct {
	getFunc func(ctx context.Context, userID string) (string, error)
	calls   atomic.Int32
}

func (m *mockTokens) GetValidToken(ctx context.Context, userID string) (string, error) {
	m.calls.Add(1)
	return m.getFunc(ctx, userID)
}

type mockWorkspace struct {
	createEventFunc func(ctx context.Context, accessToken string, ev core.EventDraft) (core.ActionSummary, error)
	createTaskFunc  func(ctx context.Context, accessToken string, task core.TaskDraft) (core.ActionSummary, error)
	calls           atomic.Int32
}

func (m *mockWorkspace) CreateEvent(ctx context.Context, accessToken string, ev core.EventDraft) (core.ActionSummary, error) {
	m.calls.Add(1)
	return m.createEventFunc(ctx, accessToken, ev)
}

func (m *mockWorkspace) CreateTask(ctx context.Context, accessToken string, task core.TaskDraft) (core.ActionSummary, error) {
	m.calls.Add(1)
	return m.createTaskFunc(ctx, accessToken, task)
}

type storedMemory struct {
	userID, content, intent string
	source                  core.MemorySource
}

type mockMemory struct {
	mu     sync.Mutex
	stored []storedMemory
}

func (m *mockMemory) Store(ctx context.Context, userID, content string, source core.MemorySource, intent string) (core.MemoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored = append(m.stored, storedMemory{userID: userID, content: content, intent: intent, source: source})
	return core.MemoryRecord{ID: int64(len(m.stored)), UserID: userID, Content: content, Source: source}, nil
}

func (m *mockMemory) Retrieve(ctx context.Context, userID, query string, k int) ([]core.ScoredMemory, error) {
	return []core.ScoredMemory{}, nil
}

type mockEmbedder struct{}

func (mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, core.ErrEmbeddingUnavailable
}

func (mockEmbedder) Dimensions() int { return 256 }

type mockRefresher struct {
	refreshFunc func(ctx context.Context, refreshToken string) (core.RefreshedToken, error)
	calls       atomic.Int32
}

func (m *mockRefresher) Refresh(ctx context.Context, refreshToken string) (core.RefreshedToken, error) {
	m.calls.Add(1)
	return m.refreshFunc(ctx, refreshToken)
}

var prague = time.FixedZone("CEST", 2*3600)

func openDB(t *testing.T) *sqldb.DB {
	t.Helper()
	db, err := sqldb.Open(context.Background(), sqldb.DialectSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newEngine(t *testing.T, db *sqldb.DB, embedder core.Embedder) *memory.Engine {
	t.Helper()
	if embedder == nil {
		r := retry.NewRetrier(&retry.Config{MaxRetries: 0, BackoffFactor: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})
		embedder = rag.NewEmbedder(rag.NewHashingProvider(256), 256, time.Second, r)
	}
	return memory.NewEngine(sqldb.NewMemoryRepo(db), vector.NewChromemIndex(), embedder, &config.MemoryConfig{RetrievalTimeout: time.Second})
}

func taskWorkspace() *mockWorkspace {
	return &mockWorkspace{
		createTaskFunc: func(ctx context.Context, accessToken string, task core.TaskDraft) (core.ActionSummary, error) {
			return core.ActionSummary{Kind: "task", ID: "t1", Title: task.Title}, nil
		},
		createEventFunc: func(ctx context.Context, accessToken string, ev core.EventDraft) (core.ActionSummary, error) {
			return core.ActionSummary{Kind: "calendar_event", ID: "e1", Title: ev.Title, When: "soon"}, nil
		},
	}
}

func newAssembler(t *testing.T, tokens core.TokenProvider, mem core.MemoryStore, ws core.Workspace) *Assembler {
	t.Helper()
	handlers := DefaultHandlers(Dependencies{
		Workspace:     ws,
		Memory:        mem,
		Location:      prague,
		EventDuration: 30 * time.Minute,
	})
	a, err := New(intent.NewRouter(), tokens, mem, handlers, Options{RetrievalK: 5})
	require.NoError(t, err)
	return a
}

func msg(text string) core.InboundMessage {
	return core.InboundMessage{
		UserID:    "u1",
		Text:      text,
		Timestamp: time.Date(2026, 10, 17, 9, 0, 0, 0, prague),
	}
}

func TestNew_RequiresEveryHandler(t *testing.T) {
	handlers := DefaultHandlers(Dependencies{})
	delete(handlers, core.IntentSaveNote)

	_, err := New(intent.NewRouter(), &mockTokens{}, &mockMemory{}, handlers, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "save_note")

	handlers[core.IntentSaveNote] = nil
	_, err = New(intent.NewRouter(), &mockTokens{}, &mockMemory{}, handlers, Options{})
	assert.Error(t, err)
}

// Scenario A: a task lands at the provider and the turn becomes a memory
// that answers a later query.
func TestHandle_CreateTaskIsRemembered(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t, openDB(t), nil)
	ws := taskWorkspace()
	var gotDraft core.TaskDraft
	ws.createTaskFunc = func(ctx context.Context, accessToken string, task core.TaskDraft) (core.ActionSummary, error) {
		assert.Equal(t, "access-1", accessToken)
		gotDraft = task
		return core.ActionSummary{Kind: "task", ID: "t1", Title: task.Title, When: "2026-10-18"}, nil
	}
	tokens := &mockTokens{getFunc: func(ctx context.Context, userID string) (string, error) {
		return "access-1", nil
	}}

	a := newAssembler(t, tokens, engine, ws)
	resp, err := a.Handle(ctx, msg("remind me to call mom tomorrow"))
	require.NoError(t, err)

	assert.Equal(t, core.IntentCreateTask, resp.Intent)
	assert.Equal(t, core.CategoryOK, resp.Category)
	require.NotNil(t, resp.Action)
	assert.Equal(t, "t1", resp.Action.ID)
	assert.Equal(t, "Call mom", gotDraft.Title)
	require.NotNil(t, gotDraft.Due)
	assert.Equal(t, 18, gotDraft.Due.Day())
	assert.Equal(t, int32(1), tokens.calls.Load())

	got, err := engine.Retrieve(ctx, "u1", "call mom", 5)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, core.SourceConversation, got[0].Source)
	assert.Equal(t, "create_task", got[0].Intent)
	assert.True(t, strings.HasPrefix(got[0].Content, "user: remind me to call mom tomorrow\nassistant: "))
}

// Scenario B: a revoked grant yields a reconnect prompt, the handler never
// runs and the token row stays as it was.
func TestHandle_RevokedTokenAsksToReconnect(t *testing.T) {
	ctx := context.Background()
	db := openDB(t)
	repo := sqldb.NewTokenRepo(db)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, repo.UpsertToken(ctx, "u1", "a1", "r1", &past))
	before, err := repo.GetToken(ctx, "u1")
	require.NoError(t, err)

	refresher := &mockRefresher{refreshFunc: func(ctx context.Context, rt string) (core.RefreshedToken, error) {
		return core.RefreshedToken{}, core.ErrTokenRevoked
	}}
	mgr := token.NewManager(repo, refresher, &config.OAuthConfig{
		SafetyMargin:   time.Minute,
		RefreshTimeout: time.Second,
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	})

	mem := &mockMemory{}
	ws := taskWorkspace()
	handlers := DefaultHandlers(Dependencies{Workspace: ws, Memory: mem, Location: prague})
	a, err := New(intent.NewRouter(), mgr, mem, handlers, Options{
		ConsentURL: func(userID string) string { return "https://brain.test/v1/google/auth?user_id=" + userID },
	})
	require.NoError(t, err)

	resp, err := a.Handle(ctx, msg("schedule a meeting with Jan tomorrow at 3pm"))
	require.NoError(t, err)

	assert.Equal(t, core.CategoryReconnectRequired, resp.Category)
	assert.Equal(t, core.IntentScheduleEvent, resp.Intent)
	assert.Contains(t, resp.Text, "https://brain.test/v1/google/auth?user_id=u1")
	assert.Zero(t, ws.calls.Load())
	assert.Equal(t, int32(1), refresher.calls.Load())

	after, err := repo.GetToken(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// the inbound message alone is still remembered
	require.Len(t, mem.stored, 1)
	assert.Equal(t, "user: schedule a meeting with Jan tomorrow at 3pm", mem.stored[0].content)
}

func TestHandle_TokenFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category core.Category
		wantErr  bool
	}{
		{name: "missing", err: core.ErrTokenMissing, category: core.CategoryReconnectRequired},
		{name: "unavailable", err: core.ErrProviderUnavailable, category: core.CategoryTemporarilyUnavail},
		{name: "storage", err: errors.New("disk on fire"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := taskWorkspace()
			mem := &mockMemory{}
			tokens := &mockTokens{getFunc: func(ctx context.Context, userID string) (string, error) {
				return "", tt.err
			}}
			a := newAssembler(t, tokens, mem, ws)

			resp, err := a.Handle(context.Background(), msg("remind me to water the plants"))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.category, resp.Category)
			}
			assert.Zero(t, ws.calls.Load())
			assert.Len(t, mem.stored, 1)
		})
	}
}

// Scenario C: with embeddings down the request still completes.
func TestHandle_EmbeddingOutageStillAnswers(t *testing.T) {
	engine := newEngine(t, openDB(t), mockEmbedder{})
	tokens := &mockTokens{getFunc: func(ctx context.Context, userID string) (string, error) {
		t.Fatal("small talk needs no token")
		return "", nil
	}}
	a := newAssembler(t, tokens, engine, taskWorkspace())

	resp, err := a.Handle(context.Background(), msg("hello!"))
	require.NoError(t, err)
	assert.Equal(t, core.IntentSmallTalk, resp.Intent)
	assert.Equal(t, core.CategoryOK, resp.Category)
	assert.Equal(t, greetingReply, resp.Text)
}

func TestHandle_HandlerFailure(t *testing.T) {
	ws := taskWorkspace()
	ws.createEventFunc = func(ctx context.Context, accessToken string, ev core.EventDraft) (core.ActionSummary, error) {
		return core.ActionSummary{}, core.ErrProviderUnavailable
	}
	mem := &mockMemory{}
	tokens := &mockTokens{getFunc: func(ctx context.Context, userID string) (string, error) { return "a", nil }}
	a := newAssembler(t, tokens, mem, ws)

	_, err := a.Handle(context.Background(), msg("dentist appointment friday at 14:00"))
	var herr *core.HandlerError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, core.IntentScheduleEvent, herr.Intent)
	assert.ErrorIs(t, err, core.ErrProviderUnavailable)

	require.Len(t, mem.stored, 1)
	assert.Equal(t, "user: dentist appointment friday at 14:00", mem.stored[0].content)
	assert.Equal(t, "schedule_event", mem.stored[0].intent)
}

func TestHandle_NoteAndRecall(t *testing.T) {
	ctx := context.Background()
	engine := newEngine(t, openDB(t), nil)
	a := newAssembler(t, &mockTokens{}, engine, taskWorkspace())

	resp, err := a.Handle(ctx, msg("note that the wifi password is sunflower42"))
	require.NoError(t, err)
	assert.Equal(t, core.IntentSaveNote, resp.Intent)
	require.NotNil(t, resp.Action)
	assert.Equal(t, "note", resp.Action.Kind)

	resp, err = a.Handle(ctx, msg("what's my wifi password?"))
	require.NoError(t, err)
	assert.Equal(t, core.IntentQueryMemory, resp.Intent)
	assert.Contains(t, resp.Text, "sunflower42")
}

func TestHandle_ScheduleDraft(t *testing.T) {
	ws := taskWorkspace()
	var got core.EventDraft
	ws.createEventFunc = func(ctx context.Context, accessToken string, ev core.EventDraft) (core.ActionSummary, error) {
		got = ev
		return core.ActionSummary{Kind: "calendar_event", ID: "e1", Title: ev.Title}, nil
	}
	tokens := &mockTokens{getFunc: func(ctx context.Context, userID string) (string, error) { return "a", nil }}
	a := newAssembler(t, tokens, &mockMemory{}, ws)

	_, err := a.Handle(context.Background(), msg("Schedule a meeting with Jan tomorrow at 3pm"))
	require.NoError(t, err)
	assert.Equal(t, "Meeting with Jan", got.Title)
	assert.False(t, got.AllDay)
	assert.Equal(t, time.Date(2026, 10, 18, 15, 0, 0, 0, prague), got.Start)
	assert.Equal(t, 30*time.Minute, got.Duration)
	firstKey := got.Key
	assert.NotEmpty(t, firstKey)

	_, err = a.Handle(context.Background(), msg("Schedule a meeting with Jan tomorrow at 3pm"))
	require.NoError(t, err)
	assert.Equal(t, firstKey, got.Key, "a resent message maps to the same event")

	_, err = a.Handle(context.Background(), msg("naplánuj schůzku v pátek"))
	require.NoError(t, err)
	assert.True(t, got.AllDay)
	assert.Equal(t, 23, got.Date.Day())
	assert.NotEqual(t, firstKey, got.Key)
}

func TestHandle_CallerGoneStillWritesBack(t *testing.T) {
	mem := &mockMemory{}
	a := newAssembler(t, &mockTokens{}, mem, taskWorkspace())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Handle(ctx, msg("hello"))
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, mem.stored, 1)
	assert.True(t, strings.HasPrefix(mem.stored[0].content, "user: hello\nassistant: "))
}

func TestHandle_RejectsMissingUser(t *testing.T) {
	a := newAssembler(t, &mockTokens{}, &mockMemory{}, taskWorkspace())
	_, err := a.Handle(context.Background(), core.InboundMessage{Text: "hi"})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}
