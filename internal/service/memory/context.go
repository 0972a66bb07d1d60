package memory

import (
	"fmt"
	"strings"

	"github.com/sandevgo/brain/internal/core"
)

// FormatContext renders retrieved memories as a system prompt section.
// Notes and conversation excerpts get separate headings.
func FormatContext(items []core.ScoredMemory) string {
	if len(items) == 0 {
		return ""
	}

	var notes, history []string
	for _, item := range items {
		line := fmt.Sprintf("- [%s] %s", item.CreatedAt.Format("2006-01-02"), oneLine(item.Content))
		if item.Source == core.SourceConversation {
			history = append(history, line)
		} else {
			notes = append(notes, line)
		}
	}

	var sb strings.Builder
	if len(notes) > 0 {
		sb.WriteString("### Things the user asked you to remember\n")
		sb.WriteString(strings.Join(notes, "\n"))
		sb.WriteString("\n")
	}
	if len(history) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("### Related past conversations\n")
		sb.WriteString(strings.Join(history, "\n"))
		sb.WriteString("\n")
	}
	return sb.String()
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
