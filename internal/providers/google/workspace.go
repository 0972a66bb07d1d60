package google

import (
	"context"
	"crypto/sha256"
	"encoding/base32"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sandevgo/brain/internal/config"
	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/pkg/log"
	"github.com/sandevgo/brain/pkg/retry"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"
)

const (
	primaryCalendar = "primary"
	defaultTaskList = "@default"
	eventDescription = "Created by Brain"
)

// Workspace reads and writes Google Calendar and Google Tasks with the
// caller's access token.
type Workspace struct {
	calendarEndpoint string
	tasksEndpoint    string
	timeout          time.Duration
	retrier          *retry.Retrier
	httpClient       *http.Client
}

func NewWorkspace(c *config.OAuthConfig, httpClient *http.Client) *Workspace {
	return &Workspace{
		calendarEndpoint: c.CalendarEndpoint,
		tasksEndpoint:    c.TasksEndpoint,
		timeout:          c.CallTimeout,
		retrier:          retry.NewRetrier(c.RetryConfig()),
		httpClient:       httpClient,
	}
}

func (w *Workspace) options(ctx context.Context, accessToken, endpoint string) []option.ClientOption {
	if w.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, w.httpClient)
	}
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))

	opts := []option.ClientOption{
		option.WithHTTPClient(hc),
		option.WithUserAgent(core.BrainUserAgent),
	}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts
}

func (w *Workspace) CreateEvent(ctx context.Context, accessToken string, ev core.EventDraft) (core.ActionSummary, error) {
	svc, err := calendar.NewService(ctx, w.options(ctx, accessToken, w.calendarEndpoint)...)
	if err != nil {
		return core.ActionSummary{}, fmt.Errorf("failed to create calendar client: %w", err)
	}

	event := &calendar.Event{
		Summary:     ev.Title,
		Description: ev.Description,
	}
	if ev.Key != "" {
		event.Id = EventID(ev.Key)
	}
	if event.Description == "" {
		event.Description = eventDescription
	}

	var when string
	if ev.AllDay {
		day := ev.Date.Format(time.DateOnly)
		// end date is exclusive
		event.Start = &calendar.EventDateTime{Date: day}
		event.End = &calendar.EventDateTime{Date: ev.Date.AddDate(0, 0, 1).Format(time.DateOnly)}
		when = day
	} else {
		end := ev.Start.Add(ev.Duration)
		event.Start = &calendar.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: ev.TimeZone}
		event.End = &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: ev.TimeZone}
		when = ev.Start.Format("2006-01-02 15:04")
	}

	var created *calendar.Event
	err = w.do(ctx, "calendar.events.insert", func(cctx context.Context) error {
		var err error
		created, err = svc.Events.Insert(primaryCalendar, event).Context(cctx).Do()
		return err
	})
	if event.Id != "" && isStatus(err, http.StatusConflict) {
		// an earlier attempt went through before its response was lost
		log.FromCtx(ctx).Info().Str("event_id", event.Id).Msg("calendar event already exists")
		err = w.do(ctx, "calendar.events.get", func(cctx context.Context) error {
			var err error
			created, err = svc.Events.Get(primaryCalendar, event.Id).Context(cctx).Do()
			return err
		})
	}
	if err != nil {
		return core.ActionSummary{}, err
	}

	return core.ActionSummary{
		Kind:  "calendar_event",
		ID:    created.Id,
		Title: created.Summary,
		Link:  created.HtmlLink,
		When:  when,
	}, nil
}

func (w *Workspace) CreateTask(ctx context.Context, accessToken string, draft core.TaskDraft) (core.ActionSummary, error) {
	svc, err := tasks.NewService(ctx, w.options(ctx, accessToken, w.tasksEndpoint)...)
	if err != nil {
		return core.ActionSummary{}, fmt.Errorf("failed to create tasks client: %w", err)
	}

	task := &tasks.Task{
		Title: draft.Title,
		Notes: draft.Notes,
	}
	var when string
	if draft.Due != nil {
		// Tasks keeps only the date part of due
		d := draft.Due
		task.Due = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
		when = d.Format(time.DateOnly)
	}

	var created *tasks.Task
	err = w.do(ctx, "tasks.insert", func(cctx context.Context) error {
		var err error
		created, err = svc.Tasks.Insert(defaultTaskList, task).Context(cctx).Do()
		return err
	})
	if err != nil {
		return core.ActionSummary{}, err
	}

	return core.ActionSummary{
		Kind:  "task",
		ID:    created.Id,
		Title: created.Title,
		Link:  created.WebViewLink,
		When:  when,
	}, nil
}

// do runs one API call with a per-attempt timeout and retries transient
// failures. Exhausted retries surface as core.ErrProviderUnavailable.
func (w *Workspace) do(ctx context.Context, op string, call func(ctx context.Context) error) error {
	logger := log.FromCtx(ctx).With().Str("op", op).Logger()

	err := w.retrier.Do(ctx, func() error {
		cctx, cancel := context.WithTimeout(ctx, w.timeout)
		defer cancel()

		err := classifyAPIError(call(cctx))
		if err != nil {
			logger.Debug().Err(err).Msg("google api call failed")
		}
		return err
	})
	if err == nil {
		return nil
	}
	if errors.Is(err, core.ErrTokenRevoked) || isPermanentAPIError(err) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrProviderUnavailable, err)
}

func classifyAPIError(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch {
	case gerr.Code == http.StatusUnauthorized:
		return retry.Permanent(fmt.Errorf("%w: %w", core.ErrTokenRevoked, err))
	case gerr.Code == http.StatusTooManyRequests || gerr.Code >= 500:
		return err
	default:
		return retry.Permanent(err)
	}
}

var eventIDEncoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// EventID derives a calendar event id from key. Calendar ids use the
// base32hex alphabet in lower case.
func EventID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return strings.ToLower(eventIDEncoding.EncodeToString(sum[:]))
}

func isStatus(err error, code int) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == code
}

func isPermanentAPIError(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return gerr.Code != http.StatusTooManyRequests && gerr.Code < 500
}

const (
	maxListedEvents = 100
	maxListedTasks  = 100
)

// ListEvents returns single events of the primary calendar overlapping
// [from, to), ordered by start. All-day dates resolve in from's location.
func (w *Workspace) ListEvents(ctx context.Context, accessToken string, from, to time.Time) ([]core.CalendarEvent, error) {
	svc, err := calendar.NewService(ctx, w.options(ctx, accessToken, w.calendarEndpoint)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar client: %w", err)
	}

	var listed *calendar.Events
	err = w.do(ctx, "calendar.events.list", func(cctx context.Context) error {
		var err error
		listed, err = svc.Events.List(primaryCalendar).
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Format(time.RFC3339)).
			SingleEvents(true).
			OrderBy("startTime").
			MaxResults(maxListedEvents).
			Context(cctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]core.CalendarEvent, 0, len(listed.Items))
	for _, item := range listed.Items {
		if item.Status == "cancelled" {
			continue
		}
		ev, err := eventFromAPI(item, from.Location())
		if err != nil {
			log.FromCtx(ctx).Debug().Err(err).Str("event_id", item.Id).Msg("skipping unreadable event")
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func (w *Workspace) RescheduleEvent(ctx context.Context, accessToken string, ev core.CalendarEvent, timeZone string) (core.CalendarEvent, error) {
	svc, err := calendar.NewService(ctx, w.options(ctx, accessToken, w.calendarEndpoint)...)
	if err != nil {
		return core.CalendarEvent{}, fmt.Errorf("failed to create calendar client: %w", err)
	}

	patch := &calendar.Event{}
	if ev.AllDay {
		patch.Start = &calendar.EventDateTime{Date: ev.Start.Format(time.DateOnly), NullFields: []string{"DateTime"}}
		patch.End = &calendar.EventDateTime{Date: ev.End.Format(time.DateOnly), NullFields: []string{"DateTime"}}
	} else {
		patch.Start = &calendar.EventDateTime{DateTime: ev.Start.Format(time.RFC3339), TimeZone: timeZone, NullFields: []string{"Date"}}
		patch.End = &calendar.EventDateTime{DateTime: ev.End.Format(time.RFC3339), TimeZone: timeZone, NullFields: []string{"Date"}}
	}

	var updated *calendar.Event
	err = w.do(ctx, "calendar.events.patch", func(cctx context.Context) error {
		var err error
		updated, err = svc.Events.Patch(primaryCalendar, ev.ID, patch).Context(cctx).Do()
		return err
	})
	if err != nil {
		return core.CalendarEvent{}, err
	}
	return eventFromAPI(updated, ev.Start.Location())
}

// DeleteEvent removes eventID. An event that is already gone counts as
// deleted.
func (w *Workspace) DeleteEvent(ctx context.Context, accessToken, eventID string) error {
	svc, err := calendar.NewService(ctx, w.options(ctx, accessToken, w.calendarEndpoint)...)
	if err != nil {
		return fmt.Errorf("failed to create calendar client: %w", err)
	}

	err = w.do(ctx, "calendar.events.delete", func(cctx context.Context) error {
		return svc.Events.Delete(primaryCalendar, eventID).Context(cctx).Do()
	})
	if isStatus(err, http.StatusGone) || isStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

// ListTasks returns the open tasks of the default list in list order.
func (w *Workspace) ListTasks(ctx context.Context, accessToken string) ([]core.PendingTask, error) {
	svc, err := tasks.NewService(ctx, w.options(ctx, accessToken, w.tasksEndpoint)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create tasks client: %w", err)
	}

	var listed *tasks.Tasks
	err = w.do(ctx, "tasks.list", func(cctx context.Context) error {
		var err error
		listed, err = svc.Tasks.List(defaultTaskList).
			ShowCompleted(false).
			MaxResults(maxListedTasks).
			Context(cctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	out := make([]core.PendingTask, 0, len(listed.Items))
	for _, item := range listed.Items {
		if item.Status == "completed" || item.Deleted || strings.TrimSpace(item.Title) == "" {
			continue
		}
		task := core.PendingTask{ID: item.Id, Title: item.Title}
		if item.Due != "" {
			if due, err := time.Parse(time.RFC3339, item.Due); err == nil {
				task.Due = &due
			}
		}
		out = append(out, task)
	}
	return out, nil
}

func (w *Workspace) CompleteTask(ctx context.Context, accessToken, taskID string) error {
	svc, err := tasks.NewService(ctx, w.options(ctx, accessToken, w.tasksEndpoint)...)
	if err != nil {
		return fmt.Errorf("failed to create tasks client: %w", err)
	}

	return w.do(ctx, "tasks.patch", func(cctx context.Context) error {
		_, err := svc.Tasks.Patch(defaultTaskList, taskID, &tasks.Task{Status: "completed"}).Context(cctx).Do()
		return err
	})
}

func eventFromAPI(item *calendar.Event, loc *time.Location) (core.CalendarEvent, error) {
	if item.Start == nil || item.End == nil {
		return core.CalendarEvent{}, errors.New("event without start or end")
	}
	start, allDay, err := parseEventTime(item.Start, loc)
	if err != nil {
		return core.CalendarEvent{}, err
	}
	end, _, err := parseEventTime(item.End, loc)
	if err != nil {
		return core.CalendarEvent{}, err
	}
	title := item.Summary
	if title == "" {
		title = "(no title)"
	}
	return core.CalendarEvent{
		ID:     item.Id,
		Title:  title,
		Start:  start,
		End:    end,
		AllDay: allDay,
		Link:   item.HtmlLink,
	}, nil
}

func parseEventTime(t *calendar.EventDateTime, loc *time.Location) (time.Time, bool, error) {
	if t.DateTime != "" {
		v, err := time.Parse(time.RFC3339, t.DateTime)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("event time %q: %w", t.DateTime, err)
		}
		return v.In(loc), false, nil
	}
	v, err := time.ParseInLocation(time.DateOnly, t.Date, loc)
	if err != nil {
		return time.Time{}, true, fmt.Errorf("event date %q: %w", t.Date, err)
	}
	return v, true, nil
}
