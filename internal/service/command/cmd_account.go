package command

import (
	"context"
	"fmt"
	"time"

	"github.com/sandevgo/brain/internal/core"
)

// TokenAdmin is the part of the token manager commands need.
type TokenAdmin interface {
	Status(ctx context.Context, userID string) (core.TokenStatus, error)
	Revoke(ctx context.Context, userID string) error
}

type ConnectCommand struct {
	consent   core.ConsentFlow
	formatter *ResponseFormatter
}

func NewConnectCommand(consent core.ConsentFlow) *ConnectCommand {
	return &ConnectCommand{consent: consent, formatter: NewResponseFormatter()}
}

func (c *ConnectCommand) Name() string { return "connect" }

func (c *ConnectCommand) Description() string {
	return "Connect your Google Calendar and Tasks"
}

func (c *ConnectCommand) Execute(ctx context.Context, userID string, args []string) (string, error) {
	var link string
	if c.consent != nil {
		link = c.consent.ConsentURL(userID)
	}
	if link == "" {
		return c.formatter.Warning("Google access is not configured on this server."), nil
	}

	return c.formatter.Combine(
		c.formatter.Info("Connect Google"),
		"Open the link, pick your account and allow access to Calendar and Tasks:\n",
		c.formatter.Link("Connect Google account", link),
		c.formatter.Tip("the link is valid for 15 minutes"),
	), nil
}

type StatusCommand struct {
	tokens    TokenAdmin
	memory    MemoryReader
	formatter *ResponseFormatter
}

func NewStatusCommand(tokens TokenAdmin, memory MemoryReader) *StatusCommand {
	return &StatusCommand{tokens: tokens, memory: memory, formatter: NewResponseFormatter()}
}

func (c *StatusCommand) Name() string { return "status" }

func (c *StatusCommand) Description() string {
	return "Show Google connection and memory size"
}

func (c *StatusCommand) Execute(ctx context.Context, userID string, args []string) (string, error) {
	st, err := c.tokens.Status(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to read connection: %w", err)
	}
	count, err := c.memory.Count(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to count memories: %w", err)
	}

	google := "not connected"
	if st.Connected {
		google = "connected"
	}

	sections := []string{
		c.formatter.Info("Status"),
		c.formatter.Label("Google", google),
	}
	if st.ExpiresAt != nil {
		sections = append(sections, c.formatter.Label("Access valid until", st.ExpiresAt.Format(time.RFC3339)))
	}
	sections = append(sections, c.formatter.Label("Memories", fmt.Sprint(count)))
	if !st.Connected {
		sections = append(sections, c.formatter.Tip("send /connect to link your Google account"))
	}
	return c.formatter.Combine(sections...), nil
}

type DisconnectCommand struct {
	tokens    TokenAdmin
	formatter *ResponseFormatter
}

func NewDisconnectCommand(tokens TokenAdmin) *DisconnectCommand {
	return &DisconnectCommand{tokens: tokens, formatter: NewResponseFormatter()}
}

func (c *DisconnectCommand) Name() string { return "disconnect" }

func (c *DisconnectCommand) Description() string {
	return "Forget your Google credentials"
}

func (c *DisconnectCommand) Execute(ctx context.Context, userID string, args []string) (string, error) {
	if err := c.tokens.Revoke(ctx, userID); err != nil {
		return "", fmt.Errorf("failed to disconnect: %w", err)
	}
	return c.formatter.Success("Google account disconnected"), nil
}
