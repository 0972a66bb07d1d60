// Package notify sends proactive messages: the morning summary and
// reminders shortly before events start.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sandevgo/brain/internal/config"
	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/internal/service/agenda"
	"github.com/sandevgo/brain/pkg/log"
)

const (
	JobMorning   = "morning_summary"
	JobReminders = "event_reminders"

	taskSyncIntent = "task_sync"
	// reminders are remembered a little longer than any lead window
	notifiedTTL = 24 * time.Hour
)

// Notifier delivers text to a user. ErrNoChannel means the user cannot be
// reached this way.
type Notifier interface {
	Notify(ctx context.Context, userID, text string) error
}

// Unreachable is the Notifier used when no transport can push messages.
type Unreachable struct{}

func (Unreachable) Notify(ctx context.Context, userID, text string) error {
	return core.ErrNoChannel
}

// UserLister returns the users with stored Google credentials.
type UserLister interface {
	ListConnectedUsers(ctx context.Context) ([]string, error)
}

type AgendaSource interface {
	Day(ctx context.Context, userID string, day time.Time) (core.Agenda, error)
	Upcoming(ctx context.Context, userID string, from, to time.Time) ([]core.CalendarEvent, error)
}

// Report is the outcome of one job run.
type Report struct {
	Job     string `json:"job"`
	Users   int    `json:"users"`
	Sent    int    `json:"sent"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
}

type JobStatus struct {
	ID      string     `json:"id"`
	LastRun *time.Time `json:"last_run,omitempty"`
	NextRun time.Time  `json:"next_run"`
}

type Status struct {
	Running bool        `json:"running"`
	Jobs    []JobStatus `json:"jobs"`
}

// Scheduler runs the notification jobs on a clock tick. Jobs can also be
// triggered by hand.
type Scheduler struct {
	users    UserLister
	agenda   AgendaSource
	notifier Notifier
	memory   core.MemoryStore
	cfg      *config.NotifyConfig
	loc      *time.Location
	now      core.Clock

	mu            sync.Mutex
	running       bool
	nextMorning   time.Time
	nextReminders time.Time
	lastRun       map[string]time.Time
	notified      map[string]time.Time

	// runMu keeps a manual trigger from overlapping the ticker
	runMu sync.Mutex
}

// NewScheduler builds the scheduler. memory may be nil to skip task sync.
func NewScheduler(
	users UserLister,
	agenda AgendaSource,
	notifier Notifier,
	memory core.MemoryStore,
	cfg *config.NotifyConfig,
	loc *time.Location,
) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		users:    users,
		agenda:   agenda,
		notifier: notifier,
		memory:   memory,
		cfg:      cfg,
		loc:      loc,
		now:      time.Now,
		lastRun:  make(map[string]time.Time),
		notified: make(map[string]time.Time),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	ctx = log.WithFields(ctx, "component", "notify")
	logger := log.FromCtx(ctx)

	now := s.now().In(s.loc)
	s.mu.Lock()
	s.running = true
	s.nextMorning = nextAt(now, s.cfg.MorningHour)
	s.nextReminders = now
	next := s.nextMorning
	s.mu.Unlock()

	logger.Info().Time("next_morning", next).Msg("starting notification scheduler")

	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
			logger.Info().Msg("shutting down notification scheduler")
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) Shutdown(ctx context.Context) error {
	return nil
}

// tick runs every job that is due.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now().In(s.loc)

	s.mu.Lock()
	morningDue := !now.Before(s.nextMorning)
	if morningDue {
		s.nextMorning = nextAt(now, s.cfg.MorningHour)
	}
	remindersDue := !now.Before(s.nextReminders)
	if remindersDue {
		s.nextReminders = now.Add(s.cfg.ReminderInterval)
	}
	s.mu.Unlock()

	if morningDue {
		r, err := s.RunMorning(ctx)
		s.logReport(ctx, r, err)
	}
	if remindersDue {
		r, err := s.RunReminders(ctx)
		s.logReport(ctx, r, err)
	}
}

func (s *Scheduler) logReport(ctx context.Context, r Report, err error) {
	logger := log.FromCtx(ctx)
	if err != nil {
		logger.Error().Err(err).Str("job", r.Job).Msg("notification job failed")
		return
	}
	ev := logger.Debug()
	if r.Sent > 0 || r.Failed > 0 {
		ev = logger.Info()
	}
	ev.Str("job", r.Job).
		Int("users", r.Users).
		Int("sent", r.Sent).
		Int("skipped", r.Skipped).
		Int("failed", r.Failed).
		Msg("notification job finished")
}

// RunMorning sends every connected user the overview of today and stores
// their open tasks as a task-sync memory.
func (s *Scheduler) RunMorning(ctx context.Context) (Report, error) {
	return s.run(ctx, JobMorning, s.morningFor)
}

// RunReminders notifies about events starting inside the lead window. Each
// event start is announced once.
func (s *Scheduler) RunReminders(ctx context.Context) (Report, error) {
	return s.run(ctx, JobReminders, s.remindersFor)
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Running: s.running}
	for _, job := range []struct {
		id   string
		next time.Time
	}{
		{JobMorning, s.nextMorning},
		{JobReminders, s.nextReminders},
	} {
		js := JobStatus{ID: job.id, NextRun: job.next}
		if last, ok := s.lastRun[job.id]; ok {
			js.LastRun = &last
		}
		st.Jobs = append(st.Jobs, js)
	}
	return st
}

// run applies fn to every connected user. One user's failure never stops
// the others.
func (s *Scheduler) run(ctx context.Context, job string, fn func(ctx context.Context, userID string, now time.Time) (int, error)) (Report, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	report := Report{Job: job}
	users, err := s.users.ListConnectedUsers(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list users: %w", err)
	}
	report.Users = len(users)

	now := s.now().In(s.loc)
	for _, userID := range users {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		uctx, cancel := s.userContext(ctx, userID)
		sent, err := fn(uctx, userID, now)
		s.account(uctx, &report, sent, err)
		cancel()
	}

	s.mu.Lock()
	s.lastRun[job] = now
	s.mu.Unlock()
	return report, nil
}

func (s *Scheduler) userContext(ctx context.Context, userID string) (context.Context, context.CancelFunc) {
	ctx = log.WithFields(ctx, "user_id", userID)
	if s.cfg.UserTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.UserTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Scheduler) account(ctx context.Context, r *Report, sent int, err error) {
	logger := log.FromCtx(ctx)
	switch {
	case err == nil:
		r.Sent += sent
	case errors.Is(err, core.ErrNoChannel), core.NeedsReconnect(err):
		logger.Debug().Err(err).Str("job", r.Job).Msg("user skipped")
		r.Skipped++
	default:
		logger.Warn().Err(err).Str("job", r.Job).Msg("notification failed")
		r.Failed++
	}
}

func (s *Scheduler) morningFor(ctx context.Context, userID string, now time.Time) (int, error) {
	day, err := s.agenda.Day(ctx, userID, now)
	if err != nil {
		return 0, err
	}

	if s.cfg.TaskSync && s.memory != nil {
		if digest := agenda.TaskDigest(day.Tasks, day.Day); digest != "" {
			if _, err := s.memory.Store(ctx, userID, digest, core.SourceTaskSync, taskSyncIntent); err != nil {
				log.FromCtx(ctx).Warn().Err(err).Msg("failed to store task digest")
			}
		}
	}

	if err := s.notifier.Notify(ctx, userID, agenda.Format(day)); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *Scheduler) remindersFor(ctx context.Context, userID string, now time.Time) (int, error) {
	events, err := s.agenda.Upcoming(ctx, userID, now.Add(s.cfg.ReminderLeadMin), now.Add(s.cfg.ReminderLeadMax))
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, ev := range events {
		lead := ev.Start.Sub(now)
		if ev.AllDay || lead < s.cfg.ReminderLeadMin || lead > s.cfg.ReminderLeadMax {
			continue
		}
		key := userID + "/" + ev.ID + "/" + ev.Start.UTC().Format(time.RFC3339)
		if !s.markNotified(key, now) {
			continue
		}
		if err := s.notifier.Notify(ctx, userID, agenda.Reminder(ev, now)); err != nil {
			s.unmarkNotified(key)
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// markNotified records key and reports whether it was new. Old keys are
// pruned on the way.
func (s *Scheduler) markNotified(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, at := range s.notified {
		if now.Sub(at) > notifiedTTL {
			delete(s.notified, k)
		}
	}
	if _, ok := s.notified[key]; ok {
		return false
	}
	s.notified[key] = now
	return true
}

func (s *Scheduler) unmarkNotified(key string) {
	s.mu.Lock()
	delete(s.notified, key)
	s.mu.Unlock()
}

// nextAt is the first hour:00 strictly after now, in now's location.
func nextAt(now time.Time, hour int) time.Time {
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !t.After(now) {
		t = time.Date(now.Year(), now.Month(), now.Day()+1, hour, 0, 0, 0, now.Location())
	}
	return t
}
