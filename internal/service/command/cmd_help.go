package command

import (
	"context"
)

type helpCommand struct {
	router    *Router
	formatter *ResponseFormatter
}

func newHelpCommand(router *Router) *helpCommand {
	return &helpCommand{router: router, formatter: NewResponseFormatter()}
}

func (c *helpCommand) Name() string { return "help" }

func (c *helpCommand) Description() string { return "Show this help" }

func (c *helpCommand) Execute(ctx context.Context, userID string, args []string) (string, error) {
	var items []string
	for _, cmd := range c.router.ListCommands() {
		items = append(items, "/"+cmd.Name()+" - "+cmd.Description())
	}

	return c.formatter.Combine(
		c.formatter.Info("Brain"),
		"Just write to me. I put events in your calendar, create tasks, keep notes and remember our conversations.\n",
		c.formatter.List([]string{
			"remind me to call mom tomorrow",
			"schedule a meeting with Jan on friday at 10:00",
			"note that the wifi password is sunflower42",
			"what's my wifi password?",
		}),
		c.formatter.List(items),
	), nil
}
