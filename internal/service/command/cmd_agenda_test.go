package command

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/internal/service/agenda"
	"github.com/sandevgo/brain/internal/service/intent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDesk struct {
	now          time.Time
	todayFunc    func(ctx context.Context, userID string) (core.Agenda, error)
	tasksFunc    func(ctx context.Context, userID string) ([]core.PendingTask, error)
	completeFunc func(ctx context.Context, userID string, n int) (core.PendingTask, error)
	cancelFunc   func(ctx context.Context, userID, query string) (core.CalendarEvent, error)
	moveFunc     func(ctx context.Context, userID, query string, to intent.Details) (core.CalendarEvent, error)
}

func (m *mockDesk) Now() time.Time { return m.now }

func (m *mockDesk) Today(ctx context.Context, userID string) (core.Agenda, error) {
	return m.todayFunc(ctx, userID)
}

func (m *mockDesk) Tasks(ctx context.Context, userID string) ([]core.PendingTask, error) {
	return m.tasksFunc(ctx, userID)
}

func (m *mockDesk) CompleteTask(ctx context.Context, userID string, n int) (core.PendingTask, error) {
	return m.completeFunc(ctx, userID, n)
}

func (m *mockDesk) CancelEvent(ctx context.Context, userID, query string) (core.CalendarEvent, error) {
	return m.cancelFunc(ctx, userID, query)
}

func (m *mockDesk) MoveEvent(ctx context.Context, userID, query string, to intent.Details) (core.CalendarEvent, error) {
	return m.moveFunc(ctx, userID, query, to)
}

var deskNow = time.Date(2026, 10, 17, 8, 30, 0, 0, time.UTC)

func deskEvent(title string, hour int) core.CalendarEvent {
	start := time.Date(2026, 10, 19, hour, 0, 0, 0, time.UTC)
	return core.CalendarEvent{ID: title, Title: title, Start: start, End: start.Add(time.Hour)}
}

func TestTodayCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("renders agenda", func(t *testing.T) {
		cmd := NewTodayCommand(&mockDesk{todayFunc: func(ctx context.Context, userID string) (core.Agenda, error) {
			return core.Agenda{
				UserID: userID,
				Day:    deskNow,
				Events: []core.CalendarEvent{deskEvent("Standup", 9)},
				Tasks:  []core.PendingTask{},
			}, nil
		}})

		out, err := cmd.Execute(ctx, "u1", nil)
		require.NoError(t, err)
		assert.Contains(t, out, "Standup")
		assert.Contains(t, out, "No open tasks")
	})

	t.Run("not connected", func(t *testing.T) {
		cmd := NewTodayCommand(&mockDesk{todayFunc: func(ctx context.Context, userID string) (core.Agenda, error) {
			return core.Agenda{}, fmt.Errorf("read token: %w", core.ErrTokenMissing)
		}})

		out, err := cmd.Execute(ctx, "u1", nil)
		require.NoError(t, err)
		assert.Contains(t, out, "/connect")
	})

	t.Run("other errors surface", func(t *testing.T) {
		cmd := NewTodayCommand(&mockDesk{todayFunc: func(ctx context.Context, userID string) (core.Agenda, error) {
			return core.Agenda{}, core.ErrProviderUnavailable
		}})

		_, err := cmd.Execute(ctx, "u1", nil)
		assert.ErrorIs(t, err, core.ErrProviderUnavailable)
	})
}

func TestTasksCommand(t *testing.T) {
	ctx := context.Background()
	due := time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC)

	cmd := NewTasksCommand(&mockDesk{now: deskNow, tasksFunc: func(ctx context.Context, userID string) ([]core.PendingTask, error) {
		return []core.PendingTask{{ID: "t1", Title: "Buy milk"}, {ID: "t2", Title: "Pay rent", Due: &due}}, nil
	}})
	out, err := cmd.Execute(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "1. ")
	assert.Contains(t, out, "Buy milk")
	assert.Contains(t, out, "2. ")
	assert.Contains(t, out, "(due 2026-10-16)")
	assert.Contains(t, out, "/done")

	empty := NewTasksCommand(&mockDesk{now: deskNow, tasksFunc: func(ctx context.Context, userID string) ([]core.PendingTask, error) {
		return nil, nil
	}})
	out, err = empty.Execute(ctx, "u1", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "No open tasks")
}

func TestDoneCommand(t *testing.T) {
	ctx := context.Background()
	var gotN int
	desk := &mockDesk{completeFunc: func(ctx context.Context, userID string, n int) (core.PendingTask, error) {
		gotN = n
		if n > 2 {
			return core.PendingTask{}, fmt.Errorf("%w: task %d of 2", core.ErrInvalidInput, n)
		}
		return core.PendingTask{ID: "t2", Title: "Pay rent"}, nil
	}}
	cmd := NewDoneCommand(desk)

	out, err := cmd.Execute(ctx, "u1", []string{"2"})
	require.NoError(t, err)
	assert.Equal(t, 2, gotN)
	assert.Contains(t, out, "Done: Pay rent")

	out, err = cmd.Execute(ctx, "u1", []string{"9"})
	require.NoError(t, err)
	assert.Contains(t, out, "no task 9")

	gotN = 0
	for _, args := range [][]string{nil, {"x"}, {"0"}, {"1", "2"}} {
		out, err = cmd.Execute(ctx, "u1", args)
		require.NoError(t, err)
		assert.Contains(t, out, "Usage")
	}
	assert.Zero(t, gotN)
}

func TestCancelCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes the match", func(t *testing.T) {
		var gotQuery string
		cmd := NewCancelCommand(&mockDesk{cancelFunc: func(ctx context.Context, userID, query string) (core.CalendarEvent, error) {
			gotQuery = query
			return deskEvent("Dentist", 14), nil
		}})

		out, err := cmd.Execute(ctx, "u1", []string{"the", "dentist"})
		require.NoError(t, err)
		assert.Equal(t, "the dentist", gotQuery)
		assert.Contains(t, out, "Cancelled: Mon 19 Oct 14:00, Dentist")
	})

	t.Run("ambiguous lists candidates", func(t *testing.T) {
		cmd := NewCancelCommand(&mockDesk{cancelFunc: func(ctx context.Context, userID, query string) (core.CalendarEvent, error) {
			return core.CalendarEvent{}, &agenda.AmbiguousError{
				Query:   query,
				Matches: []core.CalendarEvent{deskEvent("Gym", 7), deskEvent("Gym class", 18)},
			}
		}})

		out, err := cmd.Execute(ctx, "u1", []string{"gym"})
		require.NoError(t, err)
		assert.Contains(t, out, "2 events match `gym`")
		assert.Contains(t, out, "07:00, Gym")
		assert.Contains(t, out, "18:00, Gym class")
	})

	t.Run("no match", func(t *testing.T) {
		cmd := NewCancelCommand(&mockDesk{cancelFunc: func(ctx context.Context, userID, query string) (core.CalendarEvent, error) {
			return core.CalendarEvent{}, agenda.ErrNoMatch
		}})

		out, err := cmd.Execute(ctx, "u1", []string{"yoga"})
		require.NoError(t, err)
		assert.Contains(t, out, "No upcoming event")
	})

	t.Run("usage", func(t *testing.T) {
		out, err := NewCancelCommand(&mockDesk{}).Execute(ctx, "u1", nil)
		require.NoError(t, err)
		assert.Contains(t, out, "Usage")
	})
}

func TestMoveCommand(t *testing.T) {
	ctx := context.Background()

	var gotQuery string
	var gotTo intent.Details
	desk := &mockDesk{now: deskNow, moveFunc: func(ctx context.Context, userID, query string, to intent.Details) (core.CalendarEvent, error) {
		gotQuery, gotTo = query, to
		return deskEvent("Lunch to go", 16), nil
	}}
	cmd := NewMoveCommand(desk)

	out, err := cmd.Execute(ctx, "u1", []string{"lunch", "to", "go", "to", "16:00"})
	require.NoError(t, err)
	assert.Equal(t, "lunch to go", gotQuery)
	assert.True(t, gotTo.HasTime)
	assert.Equal(t, 16, gotTo.Hour)
	assert.Nil(t, gotTo.Date)
	assert.Contains(t, out, "Moved: Mon 19 Oct 16:00, Lunch to go")

	_, err = cmd.Execute(ctx, "u1", []string{"porada", "na", "zitra"})
	require.NoError(t, err)
	assert.Equal(t, "porada", gotQuery)
	require.NotNil(t, gotTo.Date)
	assert.Equal(t, 18, gotTo.Date.Day())

	gotQuery = ""
	out, err = cmd.Execute(ctx, "u1", []string{"lunch", "to", "someday"})
	require.NoError(t, err)
	assert.Contains(t, out, "could not read a date or time")
	assert.Empty(t, gotQuery)

	for _, args := range [][]string{nil, {"lunch"}, {"to", "16:00"}, {"lunch", "to"}} {
		out, err = cmd.Execute(ctx, "u1", args)
		require.NoError(t, err)
		assert.Contains(t, out, "Usage")
	}
}

func TestMoveCommand_Errors(t *testing.T) {
	cmd := NewMoveCommand(&mockDesk{now: deskNow, moveFunc: func(ctx context.Context, userID, query string, to intent.Details) (core.CalendarEvent, error) {
		return core.CalendarEvent{}, fmt.Errorf("refresh: %w", core.ErrTokenRevoked)
	}})

	out, err := cmd.Execute(context.Background(), "u1", []string{"lunch", "to", "16:00"})
	require.NoError(t, err)
	assert.Contains(t, out, "Google is not connected")
}
