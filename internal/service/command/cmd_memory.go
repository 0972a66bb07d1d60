package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sandevgo/brain/internal/core"
)

const recallLimit = 5

// MemoryReader is the read side of the memory engine.
type MemoryReader interface {
	Retrieve(ctx context.Context, userID, query string, k int) ([]core.ScoredMemory, error)
	List(ctx context.Context, userID string, limit int) ([]core.MemoryRecord, error)
	Count(ctx context.Context, userID string) (int, error)
}

type RecallCommand struct {
	memory    MemoryReader
	formatter *ResponseFormatter
}

func NewRecallCommand(memory MemoryReader) *RecallCommand {
	return &RecallCommand{memory: memory, formatter: NewResponseFormatter()}
}

func (c *RecallCommand) Name() string { return "recall" }

func (c *RecallCommand) Description() string {
	return "Search your memories, or list the latest ones"
}

func (c *RecallCommand) Execute(ctx context.Context, userID string, args []string) (string, error) {
	if len(args) == 0 {
		recent, err := c.memory.List(ctx, userID, recallLimit)
		if err != nil {
			return "", fmt.Errorf("failed to list memories: %w", err)
		}
		if len(recent) == 0 {
			return c.formatter.Warning("I don't remember anything yet."), nil
		}
		items := make([]string, 0, len(recent))
		for _, m := range recent {
			items = append(items, fmt.Sprintf("%s  %s", m.CreatedAt.Format("2006-01-02"), preview(m.Content)))
		}
		return c.formatter.Combine(
			c.formatter.Info("Latest memories"),
			c.formatter.List(items),
			c.formatter.Usage("/recall <what to look for>"),
		), nil
	}

	query := strings.Join(args, " ")
	found, err := c.memory.Retrieve(ctx, userID, query, recallLimit)
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return c.formatter.Warning("Nothing found for `" + query + "`."), nil
	}

	items := make([]string, 0, len(found))
	for _, m := range found {
		items = append(items, fmt.Sprintf("`%s` %s", strconv.FormatFloat(float64(m.Similarity), 'f', 2, 32), preview(m.Content)))
	}
	return c.formatter.Combine(
		c.formatter.Info("Memories about "+query),
		c.formatter.List(items),
	), nil
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 120 {
		return string(r[:120]) + "…"
	}
	return s
}
