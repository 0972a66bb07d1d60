package core

import (
	"time"
)

const (
	BrainName      = "Brain"
	BrainUserAgent = "Brain-Assistant/0.1"
	BrainVersion   = "0.1.0"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// InboundMessage is what a capture surface hands to the assembler.
type InboundMessage struct {
	UserID    string    `json:"user_id"`
	ChatID    string    `json:"chat_id,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Category tells outer layers how to render a Response.
type Category string

const (
	CategoryOK                 Category = "ok"
	CategoryReconnectRequired  Category = "reconnect_required"
	CategoryTemporarilyUnavail Category = "temporarily_unavailable"
	CategoryFailed             Category = "failed"
)

// ActionSummary describes the side effect a handler performed at the provider.
type ActionSummary struct {
	Kind  string `json:"kind"`
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
	Link  string `json:"link,omitempty"`
	When  string `json:"when,omitempty"`
}

type Response struct {
	Text     string         `json:"text"`
	Category Category       `json:"category"`
	Intent   Intent         `json:"intent"`
	Action   *ActionSummary `json:"action,omitempty"`
}

type SubscriptionStatus string

const (
	SubscriptionFree      SubscriptionStatus = "free"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

type User struct {
	UserID             string             `json:"user_id"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	CreatedAt          time.Time          `json:"created_at"`
}

// GoogleToken mirrors one row of google_tokens. A nil ExpiresAt means the
// expiry is unknown and the token is refreshed before use.
type GoogleToken struct {
	ID           int64      `json:"id"`
	UserID       string     `json:"user_id"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// RefreshedToken is a validated token endpoint response.
type RefreshedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type TokenStatus struct {
	UserID    string     `json:"user_id"`
	Connected bool       `json:"connected"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

type MemorySource string

const (
	SourceConversation MemorySource = "conversation"
	SourceNote         MemorySource = "note"
	SourceTaskSync     MemorySource = "task-sync"
)

func (s MemorySource) Valid() bool {
	switch s {
	case SourceConversation, SourceNote, SourceTaskSync:
		return true
	}
	return false
}

type MemoryRecord struct {
	ID        int64        `json:"id"`
	UserID    string       `json:"user_id"`
	Content   string       `json:"content"`
	Source    MemorySource `json:"source"`
	Intent    string       `json:"intent,omitempty"`
	Embedding []float32    `json:"-"`
	CreatedAt time.Time    `json:"created_at"`
}

type ScoredMemory struct {
	MemoryRecord
	Similarity float32 `json:"similarity"`
}

// EventDraft is a calendar entry extracted from a message. A zero Start
// clock with AllDay set means the event spans the whole Date.
type EventDraft struct {
	Title       string
	Description string
	Date        time.Time
	AllDay      bool
	Start       time.Time
	Duration    time.Duration
	TimeZone    string
	// Key names the request that produced the draft. Drafts with the same
	// key land on the same calendar event, so retries never duplicate it.
	Key string
}

type TaskDraft struct {
	Title string
	Notes string
	Due   *time.Time
}

// CalendarEvent is an entry read back from the primary calendar. All-day
// events start at midnight of their first day and End is exclusive.
type CalendarEvent struct {
	ID     string    `json:"id"`
	Title  string    `json:"title"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	AllDay bool      `json:"all_day"`
	Link   string    `json:"link,omitempty"`
}

func (e CalendarEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// PendingTask is an open entry of the default task list.
type PendingTask struct {
	ID    string     `json:"id"`
	Title string     `json:"title"`
	Due   *time.Time `json:"due,omitempty"`
}

// Overdue reports whether the due day ended before day.
func (t PendingTask) Overdue(day time.Time) bool {
	if t.Due == nil {
		return false
	}
	y, m, d := t.Due.Date()
	dy, dm, dd := day.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Before(time.Date(dy, dm, dd, 0, 0, 0, 0, time.UTC))
}

// Agenda is one user's day: events of that day and every open task.
type Agenda struct {
	UserID string          `json:"user_id"`
	Day    time.Time       `json:"day"`
	Events []CalendarEvent `json:"events"`
	Tasks  []PendingTask   `json:"tasks"`
}
