package command

import (
	"context"
	"sort"
	"strings"

	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/pkg/log"
)

type Router struct {
	commands  map[string]core.Command
	aliases   map[string]string
	formatter *ResponseFormatter
}

func New(commands []core.Command) *Router {
	c := &Router{
		commands:  make(map[string]core.Command),
		aliases:   map[string]string{"start": "help"},
		formatter: NewResponseFormatter(),
	}

	for _, cmd := range commands {
		c.commands[cmd.Name()] = cmd
	}
	c.commands["help"] = newHelpCommand(c)
	return c
}

// Execute runs input when it is a slash command. The bool reports whether
// input was one.
func (c *Router) Execute(ctx context.Context, userID, input string) (string, bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", false
	}

	parts := strings.Fields(input)
	name := strings.TrimPrefix(parts[0], "/")
	// Telegram appends the bot name in groups: /status@brain_bot
	name, _, _ = strings.Cut(name, "@")
	name = strings.ToLower(name)
	if alias, ok := c.aliases[name]; ok {
		name = alias
	}
	args := parts[1:]

	cmd, ok := c.commands[name]
	if !ok {
		return c.formatter.Combine(
			c.formatter.Info("Unknown command /"+name),
			c.formatter.Tip("send /help to see what I understand"),
		), true
	}

	log.FromCtx(ctx).Debug().Str("command", name).Str("user_id", userID).Msg("executing command")

	result, err := cmd.Execute(ctx, userID, args)
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Str("command", name).Msg("command failed")
		return c.formatter.Error(name, err), true
	}
	return result, true
}

// ListCommands returns the commands sorted by name.
func (c *Router) ListCommands() []core.Command {
	res := make([]core.Command, 0, len(c.commands))
	for _, cmd := range c.commands {
		res = append(res, cmd)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name() < res[j].Name() })
	return res
}
