package assembler

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/internal/service/memory"
)

const PersonaFile = "PERSONA.md"

const defaultPersona = `You are Brain, a personal assistant. You keep the user's calendar and tasks in Google and remember what they tell you.
Answer briefly and in the language the user writes in. Only state facts about the user that appear in the provided memories.`

// SysPrompt builds the system messages for language model calls. A
// PERSONA.md in the runtime directory replaces the built-in persona.
type SysPrompt struct {
	runtimePath string
}

func NewSysPrompt(runtimePath string) *SysPrompt {
	return &SysPrompt{runtimePath: runtimePath}
}

func (p *SysPrompt) persona() string {
	if p == nil || p.runtimePath == "" {
		return defaultPersona
	}
	content, err := os.ReadFile(filepath.Join(p.runtimePath, PersonaFile))
	if err != nil || strings.TrimSpace(string(content)) == "" {
		return defaultPersona
	}
	return string(content)
}

func (p *SysPrompt) Build(now time.Time, memories []core.ScoredMemory, userText string) []core.Message {
	messages := []core.Message{
		{Role: core.RoleSystem, Content: p.persona()},
		{Role: core.RoleSystem, Content: "Current time: " + now.Format("Monday, 2006-01-02 15:04 MST")},
	}
	if rag := memory.FormatContext(memories); rag != "" {
		messages = append(messages, core.Message{Role: core.RoleSystem, Content: rag})
	}
	return append(messages, core.Message{Role: core.RoleUser, Content: userText})
}
