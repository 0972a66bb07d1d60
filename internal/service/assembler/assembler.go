// Package assembler runs one inbound message through the Brain: classify,
// gather token and memories, dispatch, remember.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/pkg/log"
	"golang.org/x/sync/errgroup"
)

const (
	defaultRetrievalK     = 5
	defaultHandlerTimeout = 30 * time.Second
	defaultWriteTimeout   = 15 * time.Second
)

// Classifier maps message text to an intent. It must not block.
type Classifier interface {
	Classify(text string) core.Intent
}

// Request is everything a handler gets to work with.
type Request struct {
	Message core.InboundMessage
	Intent  core.Intent
	// AccessToken is set only for intents that require the provider.
	AccessToken string
	Memories    []core.ScoredMemory
}

type Handler interface {
	Handle(ctx context.Context, req Request) (core.Response, error)
}

type HandlerFunc func(ctx context.Context, req Request) (core.Response, error)

func (f HandlerFunc) Handle(ctx context.Context, req Request) (core.Response, error) {
	return f(ctx, req)
}

type Options struct {
	RetrievalK     int
	HandlerTimeout time.Duration
	WriteTimeout   time.Duration
	// ConsentURL, when set, is offered in reconnect prompts.
	ConsentURL func(userID string) string
}

type Assembler struct {
	classifier Classifier
	tokens     core.TokenProvider
	memory     core.MemoryStore
	handlers   [core.IntentCount]Handler

	k              int
	handlerTimeout time.Duration
	writeTimeout   time.Duration
	consentURL     func(userID string) string
	now            core.Clock
}

// New fails unless every intent has a handler.
func New(
	classifier Classifier,
	tokens core.TokenProvider,
	memory core.MemoryStore,
	handlers map[core.Intent]Handler,
	opts Options,
) (*Assembler, error) {
	a := &Assembler{
		classifier:     classifier,
		tokens:         tokens,
		memory:         memory,
		k:              opts.RetrievalK,
		handlerTimeout: opts.HandlerTimeout,
		writeTimeout:   opts.WriteTimeout,
		consentURL:     opts.ConsentURL,
		now:            time.Now,
	}
	if a.k <= 0 {
		a.k = defaultRetrievalK
	}
	if a.handlerTimeout <= 0 {
		a.handlerTimeout = defaultHandlerTimeout
	}
	if a.writeTimeout <= 0 {
		a.writeTimeout = defaultWriteTimeout
	}

	for _, in := range core.AllIntents() {
		h, ok := handlers[in]
		if !ok || h == nil {
			return nil, fmt.Errorf("no handler for intent %s", in)
		}
		a.handlers[in] = h
	}
	return a, nil
}

// Handle processes msg. Token problems come back as a Response with a
// non-ok category; a failing handler comes back as *core.HandlerError. The
// exchange is written to memory either way, even when ctx is done before the
// result is ready, in which case the result is dropped and ctx.Err returned.
func (a *Assembler) Handle(ctx context.Context, msg core.InboundMessage) (core.Response, error) {
	if msg.UserID == "" {
		return core.Response{}, fmt.Errorf("%w: empty user id", core.ErrInvalidInput)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = a.now()
	}

	ctx = log.WithFields(ctx, "user_id", msg.UserID)
	logger := log.FromCtx(ctx)

	intent := a.classifier.Classify(msg.Text)
	if intent == core.IntentUnknown {
		logger.Debug().Err(core.ErrClassificationIndeterminate).Msg("falling back to unknown intent")
	}
	ctx = log.WithFields(ctx, "intent", intent.String())

	// the pipeline outlives a caller that gives up
	resp, err := a.run(context.WithoutCancel(ctx), msg, intent)

	if cerr := ctx.Err(); cerr != nil {
		log.FromCtx(ctx).Warn().Err(cerr).Msg("caller gone, response discarded")
		return core.Response{}, cerr
	}
	return resp, err
}

func (a *Assembler) run(ctx context.Context, msg core.InboundMessage, intent core.Intent) (core.Response, error) {
	logger := log.FromCtx(ctx)
	start := time.Now()

	var (
		token    string
		memories []core.ScoredMemory
	)

	g, gctx := errgroup.WithContext(ctx)
	if intent.RequiresProvider() {
		g.Go(func() error {
			t, err := a.tokens.GetValidToken(gctx, msg.UserID)
			if err != nil {
				return err
			}
			token = t
			return nil
		})
	}
	g.Go(func() error {
		// never fails, degrades to nothing
		memories, _ = a.memory.Retrieve(gctx, msg.UserID, msg.Text, a.k)
		return nil
	})

	if err := g.Wait(); err != nil {
		a.remember(ctx, msg, intent, "")
		return a.tokenFailure(ctx, msg.UserID, intent, err)
	}

	hctx, cancel := context.WithTimeout(ctx, a.handlerTimeout)
	resp, err := a.handlers[intent].Handle(hctx, Request{
		Message:     msg,
		Intent:      intent,
		AccessToken: token,
		Memories:    memories,
	})
	cancel()
	if err != nil {
		logger.Error().Err(err).Msg("handler failed")
		a.remember(ctx, msg, intent, "")
		return core.Response{}, &core.HandlerError{Intent: intent, Err: err}
	}

	if resp.Category == "" {
		resp.Category = core.CategoryOK
	}
	resp.Intent = intent

	a.remember(ctx, msg, intent, resp.Text)

	logger.Info().
		Int("memories", len(memories)).
		Dur("took", time.Since(start)).
		Msg("message handled")
	return resp, nil
}

func (a *Assembler) tokenFailure(ctx context.Context, userID string, intent core.Intent, err error) (core.Response, error) {
	logger := log.FromCtx(ctx)

	switch {
	case core.NeedsReconnect(err):
		logger.Info().Err(err).Msg("google access needs reconnect")
		text := "I can't reach your Google account. Please connect it again with /connect."
		if a.consentURL != nil {
			if u := a.consentURL(userID); u != "" {
				text = "I can't reach your Google account. Please connect it again: " + u
			}
		}
		return core.Response{Text: text, Category: core.CategoryReconnectRequired, Intent: intent}, nil

	case errors.Is(err, core.ErrProviderUnavailable):
		logger.Warn().Err(err).Msg("google temporarily unavailable")
		return core.Response{
			Text:     "Google is not responding right now. Please try again in a moment.",
			Category: core.CategoryTemporarilyUnavail,
			Intent:   intent,
		}, nil

	default:
		return core.Response{}, fmt.Errorf("failed to get google token: %w", err)
	}
}

// remember stores the turn as a conversation memory. Failures are logged
// only, the response is already decided.
func (a *Assembler) remember(ctx context.Context, msg core.InboundMessage, intent core.Intent, reply string) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	content := "user: " + text
	if reply != "" {
		content += "\nassistant: " + reply
	}

	wctx, cancel := context.WithTimeout(ctx, a.writeTimeout)
	defer cancel()

	if _, err := a.memory.Store(wctx, msg.UserID, content, core.SourceConversation, intent.String()); err != nil {
		log.FromCtx(ctx).Error().Err(err).Msg("failed to write conversation to memory")
	}
}
