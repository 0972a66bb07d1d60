// Package http exposes the Brain over a small JSON API.
package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sandevgo/brain/internal/config"
	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/internal/service/notify"
	"github.com/sandevgo/brain/pkg/log"
)

const (
	secretHeader    = "X-Brain-Secret"
	requestIDHeader = "X-Request-ID"
)

// MessageHandler is the assembler.
type MessageHandler interface {
	Handle(ctx context.Context, msg core.InboundMessage) (core.Response, error)
}

type TokenService interface {
	StoreInitialToken(ctx context.Context, userID, accessToken, refreshToken string, expiresAt *time.Time) error
	Revoke(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (core.TokenStatus, error)
}

type MemoryService interface {
	Retrieve(ctx context.Context, userID, query string, k int) ([]core.ScoredMemory, error)
	List(ctx context.Context, userID string, limit int) ([]core.MemoryRecord, error)
	Erase(ctx context.Context, userID string, purge func(context.Context) error) error
}

type UserStore interface {
	GetUser(ctx context.Context, userID string) (core.User, error)
	SetSubscription(ctx context.Context, userID string, status core.SubscriptionStatus) error
	DeleteUser(ctx context.Context, userID string) error
}

type AgendaService interface {
	Today(ctx context.Context, userID string) (core.Agenda, error)
}

// CronService runs the notification jobs on demand.
type CronService interface {
	RunMorning(ctx context.Context) (notify.Report, error)
	RunReminders(ctx context.Context) (notify.Report, error)
	Status() notify.Status
}

type Deps struct {
	Messages MessageHandler
	Commands core.CmdRouter
	Tokens   TokenService
	Memory   MemoryService
	Users    UserStore
	Consent  core.ConsentFlow
	Agenda   AgendaService
	// Cron is nil when notifications are disabled.
	Cron CronService
}

type Server struct {
	cfg  *config.HTTPConfig
	deps Deps
	srv  *http.Server
}

func NewServer(ctx context.Context, cfg *config.HTTPConfig, deps Deps) *Server {
	s := &Server{cfg: cfg, deps: deps}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	return s
}

// Handler returns the routed API with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.health)

	mux.Handle("POST /v1/messages", s.protect(s.postMessage))
	mux.Handle("PUT /v1/users/{userID}/token", s.protect(s.putToken))
	mux.Handle("GET /v1/users/{userID}/token", s.protect(s.getToken))
	mux.Handle("DELETE /v1/users/{userID}/token", s.protect(s.deleteToken))
	mux.Handle("GET /v1/users/{userID}/memories", s.protect(s.getMemories))
	mux.Handle("GET /v1/users/{userID}", s.protect(s.getUser))
	mux.Handle("PUT /v1/users/{userID}/subscription", s.protect(s.putSubscription))
	mux.Handle("DELETE /v1/users/{userID}", s.protect(s.deleteUser))
	mux.Handle("GET /v1/users/{userID}/today", s.protect(s.getToday))

	mux.Handle("POST /v1/cron/trigger", s.protect(s.triggerCron))
	mux.Handle("GET /v1/cron/status", s.protect(s.cronStatus))

	// the browser reaches these, so no secret
	mux.HandleFunc("GET /v1/google/auth", s.googleAuth)
	mux.HandleFunc("GET /v1/google/callback", s.googleCallback)

	return s.withRequestID(mux)
}

func (s *Server) Start(ctx context.Context) error {
	log.FromCtx(ctx).Info().Str("addr", s.cfg.Addr).Msg("starting http server")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		ctx := log.WithFields(r.Context(), "request_id", id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))

		log.FromCtx(ctx).Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}

// protect checks the shared secret when one is configured and bounds the
// request with the configured timeout.
func (s *Server) protect(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Secret != "" {
			got := r.Header.Get(secretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Secret)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid secret")
				return
			}
		}
		if s.cfg.RequestTimeout > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
			defer cancel()
			r = r.WithContext(ctx)
		}
		h(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": core.BrainVersion})
}
