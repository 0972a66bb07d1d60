// Package agenda reads the user's calendar and task list back and applies
// the edits that commands ask for.
package agenda

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/internal/service/intent"
	"github.com/sandevgo/brain/pkg/log"
	"github.com/sandevgo/brain/pkg/textnorm"
	"golang.org/x/sync/errgroup"
)

// searchWindow bounds how far ahead events are matched by title.
const searchWindow = 14 * 24 * time.Hour

var ErrNoMatch = errors.New("no matching event")

// AmbiguousError lists the events a query matched when exactly one was
// needed.
type AmbiguousError struct {
	Query   string
	Matches []core.CalendarEvent
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("%d events match %q", len(e.Matches), e.Query)
}

type Service struct {
	tokens   core.TokenProvider
	planner  core.Planner
	loc      *time.Location
	duration time.Duration
	now      core.Clock
}

// New builds the service. duration is used when a timeless event gets a
// clock time.
func New(tokens core.TokenProvider, planner core.Planner, loc *time.Location, duration time.Duration) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		tokens:   tokens,
		planner:  planner,
		loc:      loc,
		duration: duration,
		now:      time.Now,
	}
}

func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

func (s *Service) Today(ctx context.Context, userID string) (core.Agenda, error) {
	return s.Day(ctx, userID, s.Now())
}

// Day collects the events of day and every open task.
func (s *Service) Day(ctx context.Context, userID string, day time.Time) (core.Agenda, error) {
	token, err := s.tokens.GetValidToken(ctx, userID)
	if err != nil {
		return core.Agenda{}, err
	}

	start := midnight(day.In(s.loc))
	a := core.Agenda{UserID: userID, Day: start}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		a.Events, err = s.planner.ListEvents(gctx, token, start, start.AddDate(0, 0, 1))
		return err
	})
	g.Go(func() error {
		var err error
		a.Tasks, err = s.planner.ListTasks(gctx, token)
		return err
	})
	if err := g.Wait(); err != nil {
		return core.Agenda{}, err
	}

	if a.Events == nil {
		a.Events = []core.CalendarEvent{}
	}
	if a.Tasks == nil {
		a.Tasks = []core.PendingTask{}
	}
	return a, nil
}

// Upcoming lists events overlapping [from, to).
func (s *Service) Upcoming(ctx context.Context, userID string, from, to time.Time) ([]core.CalendarEvent, error) {
	token, err := s.tokens.GetValidToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.planner.ListEvents(ctx, token, from.In(s.loc), to.In(s.loc))
}

func (s *Service) Tasks(ctx context.Context, userID string) ([]core.PendingTask, error) {
	token, err := s.tokens.GetValidToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.planner.ListTasks(ctx, token)
}

// CompleteTask closes the n-th open task, counting from 1 in Tasks order.
func (s *Service) CompleteTask(ctx context.Context, userID string, n int) (core.PendingTask, error) {
	token, err := s.tokens.GetValidToken(ctx, userID)
	if err != nil {
		return core.PendingTask{}, err
	}
	open, err := s.planner.ListTasks(ctx, token)
	if err != nil {
		return core.PendingTask{}, err
	}
	if n < 1 || n > len(open) {
		return core.PendingTask{}, fmt.Errorf("%w: task %d of %d", core.ErrInvalidInput, n, len(open))
	}

	task := open[n-1]
	if err := s.planner.CompleteTask(ctx, token, task.ID); err != nil {
		return core.PendingTask{}, err
	}
	log.FromCtx(ctx).Info().Str("user_id", userID).Str("task_id", task.ID).Msg("task completed")
	return task, nil
}

// CancelEvent deletes the one upcoming event whose title matches query.
func (s *Service) CancelEvent(ctx context.Context, userID, query string) (core.CalendarEvent, error) {
	token, err := s.tokens.GetValidToken(ctx, userID)
	if err != nil {
		return core.CalendarEvent{}, err
	}
	ev, err := s.findEvent(ctx, token, query)
	if err != nil {
		return core.CalendarEvent{}, err
	}
	if err := s.planner.DeleteEvent(ctx, token, ev.ID); err != nil {
		return core.CalendarEvent{}, err
	}
	log.FromCtx(ctx).Info().Str("user_id", userID).Str("event_id", ev.ID).Msg("event cancelled")
	return ev, nil
}

// MoveEvent reschedules the one upcoming event whose title matches query.
// A date alone keeps the clock time; a time alone keeps the day.
func (s *Service) MoveEvent(ctx context.Context, userID, query string, to intent.Details) (core.CalendarEvent, error) {
	if !to.HasTime && to.Date == nil {
		return core.CalendarEvent{}, fmt.Errorf("%w: no new date or time", core.ErrInvalidInput)
	}

	token, err := s.tokens.GetValidToken(ctx, userID)
	if err != nil {
		return core.CalendarEvent{}, err
	}
	ev, err := s.findEvent(ctx, token, query)
	if err != nil {
		return core.CalendarEvent{}, err
	}

	moved := s.reschedule(ev, to)
	updated, err := s.planner.RescheduleEvent(ctx, token, moved, s.loc.String())
	if err != nil {
		return core.CalendarEvent{}, err
	}
	log.FromCtx(ctx).Info().Str("user_id", userID).Str("event_id", ev.ID).Msg("event moved")
	return updated, nil
}

func (s *Service) reschedule(ev core.CalendarEvent, to intent.Details) core.CalendarEvent {
	moved := ev
	start := ev.Start.In(s.loc)

	if to.HasTime {
		day := start
		if to.Date != nil {
			day = *to.Date
		}
		dur := ev.Duration()
		if ev.AllDay || dur <= 0 {
			dur = s.duration
		}
		moved.AllDay = false
		moved.Start = time.Date(day.Year(), day.Month(), day.Day(), to.Hour, to.Minute, 0, 0, s.loc)
		moved.End = moved.Start.Add(dur)
		return moved
	}

	d := *to.Date
	if ev.AllDay {
		days := max(1, int(math.Round(ev.End.Sub(ev.Start).Hours()/24)))
		moved.Start = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.loc)
		moved.End = moved.Start.AddDate(0, 0, days)
		return moved
	}
	moved.Start = time.Date(d.Year(), d.Month(), d.Day(), start.Hour(), start.Minute(), 0, 0, s.loc)
	moved.End = moved.Start.Add(ev.Duration())
	return moved
}

// findEvent matches query against upcoming titles, ignoring case and
// diacritics. An exact title beats a partial one.
func (s *Service) findEvent(ctx context.Context, token, query string) (core.CalendarEvent, error) {
	q := strings.TrimSpace(textnorm.Fold(query))
	if q == "" {
		return core.CalendarEvent{}, fmt.Errorf("%w: empty event query", core.ErrInvalidInput)
	}

	now := s.Now()
	events, err := s.planner.ListEvents(ctx, token, midnight(now), now.Add(searchWindow))
	if err != nil {
		return core.CalendarEvent{}, err
	}

	var exact, partial []core.CalendarEvent
	for _, ev := range events {
		title := strings.TrimSpace(textnorm.Fold(ev.Title))
		switch {
		case title == q:
			exact = append(exact, ev)
		case strings.Contains(title, q):
			partial = append(partial, ev)
		}
	}

	matches := exact
	if len(matches) == 0 {
		matches = partial
	}
	switch len(matches) {
	case 0:
		return core.CalendarEvent{}, fmt.Errorf("%w: %q", ErrNoMatch, query)
	case 1:
		return matches[0], nil
	default:
		return core.CalendarEvent{}, &AmbiguousError{Query: query, Matches: matches}
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
