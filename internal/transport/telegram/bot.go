package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sandevgo/brain/internal/config"
	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/pkg/log"
	tele "gopkg.in/telebot.v3"
)

const baseContextKey = "base_context"

// MessageHandler is the assembler.
type MessageHandler interface {
	Handle(ctx context.Context, msg core.InboundMessage) (core.Response, error)
}

type Bot struct {
	bot      *tele.Bot
	cfg      *config.TelegramConfig
	messages MessageHandler
	commands core.CmdRouter
	sender   *sender
}

func NewBot(
	ctx context.Context,
	cfg *config.TelegramConfig,
	messages MessageHandler,
	commands core.CmdRouter,
) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	bot := &Bot{
		bot:      b,
		cfg:      cfg,
		messages: messages,
		commands: commands,
		sender:   newSender(b),
	}

	// Use context from Signal with logger
	b.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			c.Set(baseContextKey, ctx)
			return next(c)
		}
	})

	b.Use(func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if c.Sender() == nil || !cfg.IsAuthorized(c.Sender().ID) {
				return nil
			}
			return next(c)
		}
	})

	b.Handle(tele.OnText, bot.handleMessage)

	return bot, nil
}

func (b *Bot) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Msg("starting telegram bot")
	b.bot.Start()
	return nil
}

func (b *Bot) Shutdown(ctx context.Context) error {
	b.bot.Stop()
	return nil
}

func (b *Bot) handleMessage(c tele.Context) error {
	ctx := c.Get(baseContextKey).(context.Context)
	userID := userIDOf(c.Sender().ID)
	ctx = log.WithFields(ctx, "user_id", userID)

	_ = c.Notify(tele.Typing)

	reply := b.reply(ctx, userID, c)
	return b.sender.sendMarkdown(ctx, c.Chat(), reply)
}

func (b *Bot) reply(ctx context.Context, userID string, c tele.Context) string {
	if b.commands != nil {
		if out, ok := b.commands.Execute(ctx, userID, c.Text()); ok {
			return out
		}
	}

	resp, err := b.messages.Handle(ctx, core.InboundMessage{
		UserID:    userID,
		ChatID:    strconv.FormatInt(c.Chat().ID, 10),
		Text:      c.Text(),
		Timestamp: c.Message().Time(),
	})
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Msg("message handling failed")
		return errorText(err)
	}
	return resp.Text
}

const userIDPrefix = "telegram-"

func userIDOf(telegramID int64) string {
	return userIDPrefix + strconv.FormatInt(telegramID, 10)
}

func telegramIDOf(userID string) (int64, bool) {
	raw, ok := strings.CutPrefix(userID, userIDPrefix)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return id, err == nil
}

// Notify sends md to the private chat of a Telegram user. Users that did
// not come through Telegram, or are no longer whitelisted, get
// core.ErrNoChannel.
func (b *Bot) Notify(ctx context.Context, userID, md string) error {
	id, ok := telegramIDOf(userID)
	if !ok || !b.cfg.IsAuthorized(id) {
		return core.ErrNoChannel
	}
	return b.sender.sendMarkdown(ctx, &tele.User{ID: id}, md)
}

func errorText(err error) string {
	var herr *core.HandlerError
	switch {
	case errors.As(err, &herr):
		return "Sorry, I couldn't finish that (" + herr.Intent.String() + "). Please try again."
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "That took too long. Please try again."
	default:
		return "Something went wrong on my side. Please try again later."
	}
}
