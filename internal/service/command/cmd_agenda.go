package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/internal/service/agenda"
	"github.com/sandevgo/brain/internal/service/intent"
)

// AgendaDesk reads and edits the user's calendar and task list.
type AgendaDesk interface {
	Now() time.Time
	Today(ctx context.Context, userID string) (core.Agenda, error)
	Tasks(ctx context.Context, userID string) ([]core.PendingTask, error)
	CompleteTask(ctx context.Context, userID string, n int) (core.PendingTask, error)
	CancelEvent(ctx context.Context, userID, query string) (core.CalendarEvent, error)
	MoveEvent(ctx context.Context, userID, query string, to intent.Details) (core.CalendarEvent, error)
}

// agendaReply turns the errors every agenda command shares into a reply.
// ok is false when err is not one of them.
func agendaReply(f *ResponseFormatter, err error) (string, bool) {
	var amb *agenda.AmbiguousError
	switch {
	case core.NeedsReconnect(err):
		return f.Combine(
			f.Warning("Google is not connected."),
			f.Tip("send /connect first"),
		), true
	case errors.Is(err, agenda.ErrNoMatch):
		return f.Warning("No upcoming event matches that."), true
	case errors.As(err, &amb):
		items := make([]string, 0, len(amb.Matches))
		for _, ev := range amb.Matches {
			items = append(items, agenda.FormatEvent(ev))
		}
		return f.Combine(
			f.Warning(fmt.Sprintf("%d events match `%s`, be more specific:", len(amb.Matches), amb.Query)),
			f.List(items),
		), true
	}
	return "", false
}

type TodayCommand struct {
	desk      AgendaDesk
	formatter *ResponseFormatter
}

func NewTodayCommand(desk AgendaDesk) *TodayCommand {
	return &TodayCommand{desk: desk, formatter: NewResponseFormatter()}
}

func (c *TodayCommand) Name() string { return "today" }

func (c *TodayCommand) Description() string {
	return "Today's events and open tasks"
}

func (c *TodayCommand) Execute(ctx context.Context, userID string, args []string) (string, error) {
	a, err := c.desk.Today(ctx, userID)
	if err != nil {
		if reply, ok := agendaReply(c.formatter, err); ok {
			return reply, nil
		}
		return "", err
	}
	return agenda.Format(a), nil
}

type TasksCommand struct {
	desk      AgendaDesk
	formatter *ResponseFormatter
}

func NewTasksCommand(desk AgendaDesk) *TasksCommand {
	return &TasksCommand{desk: desk, formatter: NewResponseFormatter()}
}

func (c *TasksCommand) Name() string { return "tasks" }

func (c *TasksCommand) Description() string {
	return "List open tasks"
}

func (c *TasksCommand) Execute(ctx context.Context, userID string, args []string) (string, error) {
	tasks, err := c.desk.Tasks(ctx, userID)
	if err != nil {
		if reply, ok := agendaReply(c.formatter, err); ok {
			return reply, nil
		}
		return "", err
	}
	if len(tasks) == 0 {
		return c.formatter.Success("No open tasks"), nil
	}
	return c.formatter.Combine(
		c.formatter.Info("Open tasks"),
		agenda.FormatTasks(tasks, c.desk.Now()),
		c.formatter.Tip("send /done <number> to tick one off"),
	), nil
}

type DoneCommand struct {
	desk      AgendaDesk
	formatter *ResponseFormatter
}

func NewDoneCommand(desk AgendaDesk) *DoneCommand {
	return &DoneCommand{desk: desk, formatter: NewResponseFormatter()}
}

func (c *DoneCommand) Name() string { return "done" }

func (c *DoneCommand) Description() string {
	return "Complete a task from the /tasks list"
}

func (c *DoneCommand) Execute(ctx context.Context, userID string, args []string) (string, error) {
	if len(args) != 1 {
		return c.formatter.Usage("/done <number>"), nil
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return c.formatter.Usage("/done <number>"), nil
	}

	task, err := c.desk.CompleteTask(ctx, userID, n)
	switch {
	case errors.Is(err, core.ErrInvalidInput):
		return c.formatter.Warning(fmt.Sprintf("There is no task %d, send /tasks to see the list.", n)), nil
	case err != nil:
		if reply, ok := agendaReply(c.formatter, err); ok {
			return reply, nil
		}
		return "", err
	}
	return c.formatter.Success("Done: " + task.Title), nil
}

type CancelCommand struct {
	desk      AgendaDesk
	formatter *ResponseFormatter
}

func NewCancelCommand(desk AgendaDesk) *CancelCommand {
	return &CancelCommand{desk: desk, formatter: NewResponseFormatter()}
}

func (c *CancelCommand) Name() string { return "cancel" }

func (c *CancelCommand) Description() string {
	return "Delete an upcoming event by title"
}

func (c *CancelCommand) Execute(ctx context.Context, userID string, args []string) (string, error) {
	query := strings.Join(args, " ")
	if query == "" {
		return c.formatter.Usage("/cancel <event title>"), nil
	}

	ev, err := c.desk.CancelEvent(ctx, userID, query)
	if err != nil {
		if reply, ok := agendaReply(c.formatter, err); ok {
			return reply, nil
		}
		return "", err
	}
	return c.formatter.Success("Cancelled: " + agenda.FormatEvent(ev)), nil
}

type MoveCommand struct {
	desk      AgendaDesk
	formatter *ResponseFormatter
}

func NewMoveCommand(desk AgendaDesk) *MoveCommand {
	return &MoveCommand{desk: desk, formatter: NewResponseFormatter()}
}

func (c *MoveCommand) Name() string { return "move" }

func (c *MoveCommand) Description() string {
	return "Move an upcoming event to another date or time"
}

func (c *MoveCommand) Execute(ctx context.Context, userID string, args []string) (string, error) {
	query, when, ok := splitMove(args)
	if !ok {
		return c.formatter.Usage("/move <event title> to <new date or time>"), nil
	}

	to := intent.Extract(when, c.desk.Now())
	if !to.HasTime && to.Date == nil {
		return c.formatter.Warning("I could not read a date or time in `" + when + "`."), nil
	}

	ev, err := c.desk.MoveEvent(ctx, userID, query, to)
	if err != nil {
		if reply, ok := agendaReply(c.formatter, err); ok {
			return reply, nil
		}
		return "", err
	}
	return c.formatter.Success("Moved: " + agenda.FormatEvent(ev)), nil
}

// splitMove cuts args at the last "to" (or Czech "na") separating the
// title from the new time.
func splitMove(args []string) (query, when string, ok bool) {
	for i := len(args) - 2; i >= 1; i-- {
		if w := strings.ToLower(args[i]); w == "to" || w == "na" {
			return strings.Join(args[:i], " "), strings.Join(args[i+1:], " "), true
		}
	}
	return "", "", false
}
