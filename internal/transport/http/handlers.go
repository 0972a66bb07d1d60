package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/internal/service/notify"
	"github.com/sandevgo/brain/pkg/log"
)

const (
	defaultMemoryK = 5
	maxMemoryK     = 50
	maxBodyBytes   = 64 << 10

	// Google issues hour-long access tokens; anything past a year is junk.
	maxExpiresIn = int64(365 * 24 * time.Hour / time.Second)
)

type messageRequest struct {
	UserID    string    `json:"user_id"`
	ChatID    string    `json:"chat_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type tokenRequest struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresAt    *time.Time `json:"expires_at"`
	// ExpiresIn in seconds wins over ExpiresAt.
	ExpiresIn int64 `json:"expires_in"`
}

type subscriptionRequest struct {
	Status core.SubscriptionStatus `json:"status"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Intent string `json:"intent,omitempty"`
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	ctx := r.Context()
	if s.deps.Commands != nil {
		if out, ok := s.deps.Commands.Execute(ctx, req.UserID, req.Text); ok {
			writeJSON(w, http.StatusOK, core.Response{Text: out, Category: core.CategoryOK})
			return
		}
	}

	resp, err := s.deps.Messages.Handle(ctx, core.InboundMessage{
		UserID:    req.UserID,
		ChatID:    req.ChatID,
		Text:      req.Text,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		s.writeHandleError(w, r, err)
		return
	}

	status := http.StatusOK
	switch resp.Category {
	case core.CategoryReconnectRequired:
		status = http.StatusConflict
	case core.CategoryTemporarilyUnavail:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func (s *Server) writeHandleError(w http.ResponseWriter, r *http.Request, err error) {
	var herr *core.HandlerError
	switch {
	case errors.As(err, &herr):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: herr.Err.Error(), Intent: herr.Intent.String()})
	case errors.Is(err, core.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case core.NeedsReconnect(err):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, core.ErrProviderUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, r.Context().Err()):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		log.FromCtx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) putToken(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	var req tokenRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.ExpiresIn < 0 || req.ExpiresIn > maxExpiresIn {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("expires_in must be between 0 and %d seconds", maxExpiresIn))
		return
	}

	expiresAt := req.ExpiresAt
	if req.ExpiresIn > 0 {
		t := time.Now().Add(time.Duration(req.ExpiresIn) * time.Second).UTC()
		expiresAt = &t
	}

	err := s.deps.Tokens.StoreInitialToken(r.Context(), userID, req.AccessToken, req.RefreshToken, expiresAt)
	if err != nil {
		s.writeHandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getToken(w http.ResponseWriter, r *http.Request) {
	st, err := s.deps.Tokens.Status(r.Context(), r.PathValue("userID"))
	if err != nil {
		s.writeHandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) deleteToken(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Tokens.Revoke(r.Context(), r.PathValue("userID")); err != nil {
		s.writeHandleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getMemories(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")
	q := strings.TrimSpace(r.URL.Query().Get("q"))

	k := defaultMemoryK
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "k must be a positive integer")
			return
		}
		k = min(n, maxMemoryK)
	}

	if q == "" {
		list, err := s.deps.Memory.List(r.Context(), userID, k)
		if err != nil {
			s.writeHandleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"memories": list})
		return
	}

	found, err := s.deps.Memory.Retrieve(r.Context(), userID, q, k)
	if err != nil {
		s.writeHandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": found})
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	u, err := s.deps.Users.GetUser(r.Context(), r.PathValue("userID"))
	if err != nil {
		s.writeUserError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) putSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	userID := r.PathValue("userID")
	if err := s.deps.Users.SetSubscription(ctx, userID, req.Status); err != nil {
		s.writeUserError(w, r, err)
		return
	}
	log.FromCtx(ctx).Info().Str("user_id", userID).Str("status", string(req.Status)).Msg("subscription updated")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeUserError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, core.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeHandleError(w, r, err)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userID")

	err := s.deps.Memory.Erase(r.Context(), userID, func(ctx context.Context) error {
		return s.deps.Users.DeleteUser(ctx, userID)
	})
	if err != nil {
		s.writeUserError(w, r, err)
		return
	}
	log.FromCtx(r.Context()).Info().Str("user_id", userID).Msg("user erased")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getToday(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Agenda.Today(r.Context(), r.PathValue("userID"))
	if err != nil {
		s.writeHandleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) triggerCron(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cron == nil {
		writeError(w, http.StatusNotFound, "notifications are disabled")
		return
	}

	var run func(context.Context) (notify.Report, error)
	switch job := r.URL.Query().Get("type"); job {
	case "morning", notify.JobMorning:
		run = s.deps.Cron.RunMorning
	case "reminders", notify.JobReminders:
		run = s.deps.Cron.RunReminders
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown job type %q, want morning or reminders", job))
		return
	}

	ctx := r.Context()
	report, err := run(ctx)
	if err != nil {
		s.writeHandleError(w, r, err)
		return
	}
	log.FromCtx(ctx).Info().
		Str("job", report.Job).
		Int("sent", report.Sent).
		Int("failed", report.Failed).
		Msg("job triggered")
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) cronStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Cron == nil {
		writeError(w, http.StatusNotFound, "notifications are disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Cron.Status())
}

func (s *Server) googleAuth(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	link := ""
	if s.deps.Consent != nil {
		link = s.deps.Consent.ConsentURL(userID)
	}
	if link == "" {
		writeError(w, http.StatusNotFound, "google oauth is not configured")
		return
	}
	http.Redirect(w, r, link, http.StatusFound)
}

func (s *Server) googleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		writeError(w, http.StatusBadRequest, "consent denied: "+e)
		return
	}
	if s.deps.Consent == nil {
		writeError(w, http.StatusNotFound, "google oauth is not configured")
		return
	}

	userID, err := s.deps.Consent.VerifyState(q.Get("state"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	code := q.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	tok, err := s.deps.Consent.Exchange(ctx, code)
	if err != nil {
		log.FromCtx(ctx).Warn().Err(err).Str("user_id", userID).Msg("consent exchange failed")
		writeError(w, http.StatusBadGateway, "google rejected the authorization")
		return
	}

	exp := tok.ExpiresAt
	if err := s.deps.Tokens.StoreInitialToken(ctx, userID, tok.AccessToken, tok.RefreshToken, &exp); err != nil {
		s.writeHandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, "Google account connected. You can close this page and go back to Brain.")
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
