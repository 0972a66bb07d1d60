// Package intent classifies inbound messages with a fixed keyword rule set
// and pulls scheduling details out of them. It never does I/O.
package intent

import (
	"sort"
	"strings"

	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/pkg/textnorm"
)

// minScore is the lowest winning score. Anything below is unknown.
const minScore = 1.0

// maxInputRunes bounds the work done on pathological input.
const maxInputRunes = 4096

type Router struct{}

func NewRouter() *Router {
	return &Router{}
}

// Classification explains a Classify decision.
type Classification struct {
	Intent  core.Intent
	Scores  map[core.Intent]float64
	Matched []string
}

// Classify maps text to exactly one intent. Empty or unrecognised text is
// core.IntentUnknown.
func (r *Router) Classify(text string) core.Intent {
	return r.Explain(text).Intent
}

func (r *Router) Explain(text string) Classification {
	c := Classification{
		Intent: core.IntentUnknown,
		Scores: make(map[core.Intent]float64),
	}

	text = clip(text)
	words := textnorm.Words(text)
	if len(words) == 0 {
		return c
	}

	for _, rl := range rules {
		if rl.matches(words) {
			c.Scores[rl.intent] += rl.weight
			c.Matched = append(c.Matched, strings.Join(rl.phrase, " "))
		}
	}

	folded := string(textnorm.FoldRunes(text))
	hasDate, hasTime := cues(folded)
	if hasTime {
		c.Scores[core.IntentScheduleEvent] += timeCueWeight
		c.Matched = append(c.Matched, "<time>")
	}
	if hasDate {
		c.Scores[core.IntentScheduleEvent] += dateCueWeight
		c.Matched = append(c.Matched, "<date>")
	}
	if strings.HasSuffix(strings.TrimSpace(text), "?") {
		c.Scores[core.IntentQueryMemory] += questionCueWeight
		c.Matched = append(c.Matched, "<question>")
	}

	best, bestScore := core.IntentUnknown, 0.0
	for _, in := range precedence {
		if s := c.Scores[in]; s > bestScore {
			best, bestScore = in, s
		}
	}
	if bestScore >= minScore {
		c.Intent = best
	}

	sort.Strings(c.Matched)
	return c
}

func clip(text string) string {
	if len(text) <= maxInputRunes {
		return text
	}
	rs := []rune(text)
	if len(rs) > maxInputRunes {
		rs = rs[:maxInputRunes]
	}
	return string(rs)
}
