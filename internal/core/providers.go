package core

import (
	"context"
	"time"
)

// Embedder turns text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// ChatModel generates assistant replies.
type ChatModel interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// TokenRefresher exchanges a refresh token at the OAuth token endpoint.
// Rejections of the grant are reported as ErrTokenRevoked.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (RefreshedToken, error)
}

// ConsentFlow is the browser side of the OAuth client. ConsentURL is empty
// when no client is configured.
type ConsentFlow interface {
	ConsentURL(userID string) string
	VerifyState(state string) (userID string, err error)
	Exchange(ctx context.Context, code string) (RefreshedToken, error)
}

// Workspace performs writes in the user's Google Calendar and Tasks.
type Workspace interface {
	CreateEvent(ctx context.Context, accessToken string, ev EventDraft) (ActionSummary, error)
	CreateTask(ctx context.Context, accessToken string, task TaskDraft) (ActionSummary, error)
}

// Planner reads and edits what Workspace writes.
type Planner interface {
	ListEvents(ctx context.Context, accessToken string, from, to time.Time) ([]CalendarEvent, error)
	// RescheduleEvent moves ev.ID to ev's Start and End.
	RescheduleEvent(ctx context.Context, accessToken string, ev CalendarEvent, timeZone string) (CalendarEvent, error)
	DeleteEvent(ctx context.Context, accessToken, eventID string) error
	ListTasks(ctx context.Context, accessToken string) ([]PendingTask, error)
	CompleteTask(ctx context.Context, accessToken, taskID string) error
}

// TokenProvider is the part of the token manager the assembler needs.
type TokenProvider interface {
	GetValidToken(ctx context.Context, userID string) (string, error)
}

// MemoryStore is the part of the memory engine handlers and the assembler need.
type MemoryStore interface {
	Store(ctx context.Context, userID, content string, source MemorySource, intent string) (MemoryRecord, error)
	Retrieve(ctx context.Context, userID, query string, k int) ([]ScoredMemory, error)
}

// Clock is swapped in tests.
type Clock func() time.Time
