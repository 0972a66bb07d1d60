package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sandevgo/brain/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConsent struct {
	urlFunc func(userID string) string
}

func (m *mockConsent) ConsentURL(userID string) string { return m.urlFunc(userID) }

func (m *mockConsent) VerifyState(state string) (string, error) { return "", errors.New("unused") }

func (m *mockConsent) Exchange(ctx context.Context, code string) (core.RefreshedToken, error) {
	return core.RefreshedToken{}, errors.New("unused")
}

type mockTokens struct {
	statusFunc func(ctx context.Context, userID string) (core.TokenStatus, error)
	revokeFunc func(ctx context.Context, userID string) error
}

func (m *mockTokens) Status(ctx context.Context, userID string) (core.TokenStatus, error) {
	return m.statusFunc(ctx, userID)
}

func (m *mockTokens) Revoke(ctx context.Context, userID string) error {
	return m.revokeFunc(ctx, userID)
}

type mockMemory struct {
	retrieveFunc func(ctx context.Context, userID, query string, k int) ([]core.ScoredMemory, error)
	listFunc     func(ctx context.Context, userID string, limit int) ([]core.MemoryRecord, error)
	countFunc    func(ctx context.Context, userID string) (int, error)
}

func (m *mockMemory) Retrieve(ctx context.Context, userID, query string, k int) ([]core.ScoredMemory, error) {
	return m.retrieveFunc(ctx, userID, query, k)
}

func (m *mockMemory) List(ctx context.Context, userID string, limit int) ([]core.MemoryRecord, error) {
	return m.listFunc(ctx, userID, limit)
}

func (m *mockMemory) Count(ctx context.Context, userID string) (int, error) {
	return m.countFunc(ctx, userID)
}

func newTestRouter(consent *mockConsent, tokens *mockTokens, memory *mockMemory) *Router {
	return New(NewCommands(consent, tokens, memory, &mockDesk{}))
}

func TestRouter_Execute(t *testing.T) {
	var revoked string
	tokens := &mockTokens{
		statusFunc: func(ctx context.Context, userID string) (core.TokenStatus, error) {
			return core.TokenStatus{UserID: userID}, nil
		},
		revokeFunc: func(ctx context.Context, userID string) error {
			revoked = userID
			return nil
		},
	}
	memory := &mockMemory{
		countFunc: func(ctx context.Context, userID string) (int, error) { return 3, nil },
	}
	consent := &mockConsent{urlFunc: func(userID string) string { return "https://consent/" + userID }}
	r := newTestRouter(consent, tokens, memory)
	ctx := context.Background()

	t.Run("plain text is not a command", func(t *testing.T) {
		_, ok := r.Execute(ctx, "u1", "remind me to call mom")
		assert.False(t, ok)
	})

	t.Run("connect links consent page", func(t *testing.T) {
		out, ok := r.Execute(ctx, "u1", "/connect")
		require.True(t, ok)
		assert.Contains(t, out, "https://consent/u1")
	})

	t.Run("bot suffix and case are ignored", func(t *testing.T) {
		out, ok := r.Execute(ctx, "u1", "/Status@brain_bot")
		require.True(t, ok)
		assert.Contains(t, out, "not connected")
		assert.Contains(t, out, "`3`")
		assert.Contains(t, out, "/connect")
	})

	t.Run("disconnect revokes", func(t *testing.T) {
		out, ok := r.Execute(ctx, "u7", "/disconnect")
		require.True(t, ok)
		assert.Equal(t, "u7", revoked)
		assert.Contains(t, out, "disconnected")
	})

	t.Run("unknown command", func(t *testing.T) {
		out, ok := r.Execute(ctx, "u1", "/fly")
		require.True(t, ok)
		assert.Contains(t, out, "Unknown command /fly")
	})

	t.Run("start shows help", func(t *testing.T) {
		out, ok := r.Execute(ctx, "u1", "/start")
		require.True(t, ok)
		for _, name := range []string{"/connect", "/status", "/disconnect", "/recall", "/today", "/tasks", "/done", "/cancel", "/move", "/help"} {
			assert.Contains(t, out, name)
		}
	})
}

func TestRouter_ListCommandsSorted(t *testing.T) {
	r := newTestRouter(&mockConsent{}, &mockTokens{}, &mockMemory{})

	var names []string
	for _, c := range r.ListCommands() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"cancel", "connect", "disconnect", "done", "help", "move", "recall", "status", "tasks", "today"}, names)
}

func TestRouter_CommandError(t *testing.T) {
	tokens := &mockTokens{
		revokeFunc: func(ctx context.Context, userID string) error { return errors.New("db locked") },
	}
	r := newTestRouter(&mockConsent{}, tokens, &mockMemory{})

	out, ok := r.Execute(context.Background(), "u1", "/disconnect")
	require.True(t, ok)
	assert.Contains(t, out, "/disconnect failed")
	assert.Contains(t, out, "db locked")
}

func TestConnectCommand_NotConfigured(t *testing.T) {
	cmd := NewConnectCommand(&mockConsent{urlFunc: func(string) string { return "" }})

	out, err := cmd.Execute(context.Background(), "u1", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "not configured")
}

func TestStatusCommand_Connected(t *testing.T) {
	exp := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	cmd := NewStatusCommand(
		&mockTokens{statusFunc: func(ctx context.Context, userID string) (core.TokenStatus, error) {
			return core.TokenStatus{UserID: userID, Connected: true, ExpiresAt: &exp}, nil
		}},
		&mockMemory{countFunc: func(ctx context.Context, userID string) (int, error) { return 0, nil }},
	)

	out, err := cmd.Execute(context.Background(), "u1", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "`connected`")
	assert.Contains(t, out, "2026-10-17T12:00:00Z")
	assert.NotContains(t, out, "/connect")
}

func TestRecallCommand(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	t.Run("without query lists latest", func(t *testing.T) {
		var gotLimit int
		cmd := NewRecallCommand(&mockMemory{listFunc: func(ctx context.Context, userID string, limit int) ([]core.MemoryRecord, error) {
			gotLimit = limit
			return []core.MemoryRecord{{Content: "wifi password is sunflower42", CreatedAt: created}}, nil
		}})

		out, err := cmd.Execute(ctx, "u1", nil)
		require.NoError(t, err)
		assert.Equal(t, recallLimit, gotLimit)
		assert.Contains(t, out, "2026-10-01  wifi password is sunflower42")
	})

	t.Run("query searches", func(t *testing.T) {
		var gotQuery string
		cmd := NewRecallCommand(&mockMemory{retrieveFunc: func(ctx context.Context, userID, query string, k int) ([]core.ScoredMemory, error) {
			gotQuery = query
			return []core.ScoredMemory{{MemoryRecord: core.MemoryRecord{Content: "call mom"}, Similarity: 0.875}}, nil
		}})

		out, err := cmd.Execute(ctx, "u1", []string{"mom", "call"})
		require.NoError(t, err)
		assert.Equal(t, "mom call", gotQuery)
		assert.Contains(t, out, "`0.88` call mom")
	})

	t.Run("nothing found", func(t *testing.T) {
		cmd := NewRecallCommand(&mockMemory{retrieveFunc: func(ctx context.Context, userID, query string, k int) ([]core.ScoredMemory, error) {
			return []core.ScoredMemory{}, nil
		}})

		out, err := cmd.Execute(ctx, "u1", []string{"dentist"})
		require.NoError(t, err)
		assert.Contains(t, out, "Nothing found")
	})
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b", preview("a\n\n  b"))

	long := make([]rune, 200)
	for i := range long {
		long[i] = 'x'
	}
	got := []rune(preview(string(long)))
	assert.Len(t, got, 121)
	assert.Equal(t, '…', got[120])
}
