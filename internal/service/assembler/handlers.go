package assembler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/internal/service/intent"
)

// ScheduleHandler creates an event in the user's primary calendar.
type ScheduleHandler struct {
	workspace core.Workspace
	loc       *time.Location
	duration  time.Duration
}

func NewScheduleHandler(workspace core.Workspace, loc *time.Location, duration time.Duration) *ScheduleHandler {
	if loc == nil {
		loc = time.UTC
	}
	if duration <= 0 {
		duration = 30 * time.Minute
	}
	return &ScheduleHandler{workspace: workspace, loc: loc, duration: duration}
}

func (h *ScheduleHandler) Handle(ctx context.Context, req Request) (core.Response, error) {
	now := req.Message.Timestamp.In(h.loc)
	d := intent.Extract(req.Message.Text, now)

	draft := core.EventDraft{
		Title:    d.Title,
		TimeZone: h.loc.String(),
		Duration: h.duration,
		Key:      eventKey(req.Message),
	}
	switch {
	case d.HasTime:
		start := d.At(now)
		// "at 9" said in the evening means tomorrow
		if d.Date == nil && start.Before(now) {
			start = start.AddDate(0, 0, 1)
		}
		draft.Start = start
	case d.Date != nil:
		draft.AllDay = true
		draft.Date = *d.Date
	default:
		draft.AllDay = true
		draft.Date = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc)
	}

	action, err := h.workspace.CreateEvent(ctx, req.AccessToken, draft)
	if err != nil {
		return core.Response{}, err
	}

	text := fmt.Sprintf("📅 Added to your calendar: **%s** (%s)", action.Title, action.When)
	if action.Link != "" {
		text += "\n🔗 " + action.Link
	}
	return core.Response{Text: text, Action: &action}, nil
}

// eventKey is stable across retries of one inbound message.
func eventKey(msg core.InboundMessage) string {
	return strings.Join([]string{
		msg.UserID,
		msg.Text,
		msg.Timestamp.UTC().Format(time.RFC3339Nano),
	}, "\x00")
}

// TaskHandler creates a task in the user's default task list.
type TaskHandler struct {
	workspace core.Workspace
	loc       *time.Location
}

func NewTaskHandler(workspace core.Workspace, loc *time.Location) *TaskHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &TaskHandler{workspace: workspace, loc: loc}
}

func (h *TaskHandler) Handle(ctx context.Context, req Request) (core.Response, error) {
	now := req.Message.Timestamp.In(h.loc)
	d := intent.Extract(req.Message.Text, now)

	draft := core.TaskDraft{Title: d.Title}
	switch {
	case d.Date != nil:
		due := *d.Date
		draft.Due = &due
	case d.HasTime:
		due := d.At(now)
		draft.Due = &due
	}
	if d.HasTime {
		draft.Notes = fmt.Sprintf("at %02d:%02d", d.Hour, d.Minute)
	}

	action, err := h.workspace.CreateTask(ctx, req.AccessToken, draft)
	if err != nil {
		return core.Response{}, err
	}

	text := fmt.Sprintf("✅ Task added to Google Tasks: **%s**", action.Title)
	if action.When != "" {
		text += " (due " + action.When + ")"
	}
	return core.Response{Text: text, Action: &action}, nil
}

// NoteHandler keeps the message as a note memory.
type NoteHandler struct {
	memory core.MemoryStore
}

func NewNoteHandler(memory core.MemoryStore) *NoteHandler {
	return &NoteHandler{memory: memory}
}

func (h *NoteHandler) Handle(ctx context.Context, req Request) (core.Response, error) {
	rec, err := h.memory.Store(ctx, req.Message.UserID, req.Message.Text, core.SourceNote, req.Intent.String())
	if err != nil {
		return core.Response{}, fmt.Errorf("failed to save note: %w", err)
	}

	title := intent.Extract(req.Message.Text, req.Message.Timestamp).Title
	return core.Response{
		Text: fmt.Sprintf("📝 Note saved: **%s**", title),
		Action: &core.ActionSummary{
			Kind:  "note",
			ID:    fmt.Sprint(rec.ID),
			Title: title,
		},
	}, nil
}

// RecallHandler answers from retrieved memories.
type RecallHandler struct {
	chat   core.ChatModel
	prompt *SysPrompt
	loc    *time.Location
}

func NewRecallHandler(chat core.ChatModel, prompt *SysPrompt, loc *time.Location) *RecallHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &RecallHandler{chat: chat, prompt: prompt, loc: loc}
}

func (h *RecallHandler) Handle(ctx context.Context, req Request) (core.Response, error) {
	if len(req.Memories) == 0 {
		return core.Response{Text: "I don't remember anything about that yet."}, nil
	}

	if h.chat == nil {
		var sb strings.Builder
		sb.WriteString("Here is what I remember:\n")
		for _, m := range req.Memories {
			sb.WriteString("- ")
			sb.WriteString(strings.Join(strings.Fields(m.Content), " "))
			sb.WriteString("\n")
		}
		return core.Response{Text: strings.TrimRight(sb.String(), "\n")}, nil
	}

	answer, err := h.chat.Complete(ctx, h.prompt.Build(req.Message.Timestamp.In(h.loc), req.Memories, req.Message.Text))
	if err != nil {
		return core.Response{}, err
	}
	return core.Response{Text: answer}, nil
}

// ChatHandler replies to small talk and to messages nothing else claims.
type ChatHandler struct {
	chat   core.ChatModel
	prompt *SysPrompt
	loc    *time.Location
}

func NewChatHandler(chat core.ChatModel, prompt *SysPrompt, loc *time.Location) *ChatHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &ChatHandler{chat: chat, prompt: prompt, loc: loc}
}

const (
	greetingReply = "Hi! I can put things in your calendar, create tasks, keep notes and remind you what you told me."
	unknownReply  = "I'm not sure what to do with that. Try \"remind me to ...\", \"schedule ... tomorrow at 10\", \"note that ...\" or ask me what I remember."
)

func (h *ChatHandler) Handle(ctx context.Context, req Request) (core.Response, error) {
	if h.chat == nil {
		if req.Intent == core.IntentSmallTalk {
			return core.Response{Text: greetingReply}, nil
		}
		return core.Response{Text: unknownReply}, nil
	}

	answer, err := h.chat.Complete(ctx, h.prompt.Build(req.Message.Timestamp.In(h.loc), req.Memories, req.Message.Text))
	if err != nil {
		return core.Response{}, err
	}
	return core.Response{Text: answer}, nil
}

// Dependencies are what DefaultHandlers wires into the handler table.
type Dependencies struct {
	Workspace     core.Workspace
	Memory        core.MemoryStore
	Chat          core.ChatModel
	Prompt        *SysPrompt
	Location      *time.Location
	EventDuration time.Duration
}

func DefaultHandlers(d Dependencies) map[core.Intent]Handler {
	chat := NewChatHandler(d.Chat, d.Prompt, d.Location)
	return map[core.Intent]Handler{
		core.IntentScheduleEvent: NewScheduleHandler(d.Workspace, d.Location, d.EventDuration),
		core.IntentCreateTask:    NewTaskHandler(d.Workspace, d.Location),
		core.IntentSaveNote:      NewNoteHandler(d.Memory),
		core.IntentQueryMemory:   NewRecallHandler(d.Chat, d.Prompt, d.Location),
		core.IntentSmallTalk:     chat,
		core.IntentUnknown:       chat,
	}
}
