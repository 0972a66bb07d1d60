package agenda

import (
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/brain/internal/core"
)

// summaryTaskLimit caps tasks in the day overview; /tasks shows them all.
const summaryTaskLimit = 5

// Format renders a as the Markdown day overview.
func Format(a core.Agenda) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 **Your day, %s**\n\n", a.Day.Format("Monday 2 January"))

	if len(a.Events) == 0 {
		sb.WriteString("📅 Nothing in the calendar today\n")
	} else {
		sb.WriteString("📅 **Events:**\n")
		for _, ev := range a.Events {
			fmt.Fprintf(&sb, "  %s - %s\n", clock(ev), ev.Title)
		}
	}

	sb.WriteString("\n")
	if len(a.Tasks) == 0 {
		sb.WriteString("✅ No open tasks\n")
		return sb.String()
	}
	sb.WriteString("📋 **Tasks:**\n")
	for i, t := range a.Tasks {
		if i == summaryTaskLimit {
			fmt.Fprintf(&sb, "  … and %d more, see /tasks\n", len(a.Tasks)-summaryTaskLimit)
			break
		}
		fmt.Fprintf(&sb, "  %s %s\n", taskMark(t, a.Day), t.Title)
	}
	return sb.String()
}

// FormatTasks renders the numbered list /done refers to.
func FormatTasks(tasks []core.PendingTask, day time.Time) string {
	var sb strings.Builder
	for i, t := range tasks {
		fmt.Fprintf(&sb, "%d. %s %s", i+1, taskMark(t, day), t.Title)
		if t.Due != nil {
			fmt.Fprintf(&sb, " (due %s)", t.Due.Format(time.DateOnly))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// FormatEvent is one line naming ev and when it happens.
func FormatEvent(ev core.CalendarEvent) string {
	return fmt.Sprintf("%s %s, %s", ev.Start.Format("Mon 2 Jan"), clock(ev), ev.Title)
}

// Reminder is the text sent shortly before ev starts.
func Reminder(ev core.CalendarEvent, now time.Time) string {
	mins := int(ev.Start.Sub(now).Round(time.Minute) / time.Minute)
	return fmt.Sprintf("⏰ **In %d minutes:** %s\n🕐 %s", mins, ev.Title, ev.Start.Format("15:04"))
}

// TaskDigest is the searchable memory written for the open tasks of day.
// It is empty when nothing is open.
func TaskDigest(tasks []core.PendingTask, day time.Time) string {
	if len(tasks) == 0 {
		return ""
	}
	items := make([]string, 0, len(tasks))
	for _, t := range tasks {
		item := t.Title
		switch {
		case t.Overdue(day):
			item += fmt.Sprintf(" (due %s, overdue)", t.Due.Format(time.DateOnly))
		case t.Due != nil:
			item += fmt.Sprintf(" (due %s)", t.Due.Format(time.DateOnly))
		}
		items = append(items, item)
	}
	return fmt.Sprintf("Open tasks on %s: %s.", day.Format(time.DateOnly), strings.Join(items, "; "))
}

func clock(ev core.CalendarEvent) string {
	if ev.AllDay {
		return "All day"
	}
	return ev.Start.Format("15:04")
}

func taskMark(t core.PendingTask, day time.Time) string {
	if t.Overdue(day) {
		return "⚠️"
	}
	return "☐"
}
