package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandevgo/brain/internal/config"
	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/pkg/log"
	"github.com/sandevgo/brain/pkg/retry"
	"golang.org/x/sync/singleflight"
)

// Manager owns the Google credentials of every user. Reads of a valid
// token take no lock; refreshes for one user are collapsed into a single
// provider exchange.
type Manager struct {
	repo      core.TokenRepository
	refresher core.TokenRefresher
	retrier   *retry.Retrier

	margin         time.Duration
	refreshTimeout time.Duration
	now            core.Clock

	flights singleflight.Group
}

func NewManager(repo core.TokenRepository, refresher core.TokenRefresher, cfg *config.OAuthConfig) *Manager {
	return &Manager{
		repo:           repo,
		refresher:      refresher,
		retrier:        retry.NewRetrier(cfg.RetryConfig()),
		margin:         cfg.SafetyMargin,
		refreshTimeout: cfg.RefreshTimeout,
		now:            time.Now,
	}
}

// GetValidToken returns an access token that stays valid for at least the
// safety margin, refreshing it first when needed.
func (m *Manager) GetValidToken(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: empty user id", core.ErrInvalidInput)
	}

	tok, err := m.repo.GetToken(ctx, userID)
	if err != nil {
		return "", err
	}
	if m.fresh(tok) {
		return tok.AccessToken, nil
	}

	// The flight must finish its update even when this caller goes away.
	fctx := context.WithoutCancel(ctx)
	ch := m.flights.DoChan(userID, func() (any, error) {
		return m.refresh(fctx, userID)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (m *Manager) fresh(tok core.GoogleToken) bool {
	if tok.ExpiresAt == nil {
		return false
	}
	return tok.ExpiresAt.Sub(m.now()) > m.margin
}

func (m *Manager) refresh(ctx context.Context, userID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.refreshTimeout)
	defer cancel()

	logger := log.FromCtx(ctx).With().Str("user_id", userID).Logger()

	// another flight may have finished between our read and this one
	tok, err := m.repo.GetToken(ctx, userID)
	if err != nil {
		return "", err
	}
	if m.fresh(tok) {
		return tok.AccessToken, nil
	}

	var refreshed core.RefreshedToken
	err = m.retrier.Do(ctx, func() error {
		r, err := m.refresher.Refresh(ctx, tok.RefreshToken)
		if err != nil {
			if errors.Is(err, core.ErrTokenRevoked) {
				return retry.Permanent(err)
			}
			logger.Debug().Err(err).Msg("token refresh attempt failed")
			return err
		}
		if r.AccessToken == "" {
			return errors.New("token endpoint returned empty access token")
		}
		refreshed = r
		return nil
	})
	if err != nil {
		if errors.Is(err, core.ErrTokenRevoked) {
			logger.Warn().Err(err).Msg("google grant revoked")
			return "", err
		}
		logger.Error().Err(err).Msg("token refresh failed")
		return "", fmt.Errorf("%w: token refresh: %w", core.ErrProviderUnavailable, err)
	}

	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = tok.RefreshToken
	}
	if tok.ExpiresAt != nil && tok.ExpiresAt.After(refreshed.ExpiresAt) {
		refreshed.ExpiresAt = *tok.ExpiresAt
	}

	err = m.repo.UpdateRefreshed(ctx, userID, tok.RefreshToken, refreshed)
	switch {
	case errors.Is(err, core.ErrTokenSuperseded):
		// the user connected again meanwhile; their new grant wins
		logger.Info().Msg("refresh superseded by a new grant")
		current, err := m.repo.GetToken(ctx, userID)
		if err != nil {
			return "", err
		}
		return current.AccessToken, nil
	case errors.Is(err, core.ErrTokenMissing):
		// revoked while we were refreshing
		return "", err
	case err != nil:
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	logger.Info().Time("expires_at", refreshed.ExpiresAt).Msg("google token refreshed")
	return refreshed.AccessToken, nil
}

// StoreInitialToken saves the credentials from a completed consent flow and
// creates the user on first contact.
func (m *Manager) StoreInitialToken(ctx context.Context, userID, accessToken, refreshToken string, expiresAt *time.Time) error {
	switch {
	case userID == "":
		return fmt.Errorf("%w: empty user id", core.ErrInvalidInput)
	case accessToken == "" || refreshToken == "":
		return fmt.Errorf("%w: access and refresh token are required", core.ErrInvalidInput)
	}

	if err := m.repo.UpsertToken(ctx, userID, accessToken, refreshToken, expiresAt); err != nil {
		return err
	}
	log.FromCtx(ctx).Info().Str("user_id", userID).Msg("google token stored")
	return nil
}

// Revoke deletes the stored credentials. Later GetValidToken calls fail
// with core.ErrTokenMissing.
func (m *Manager) Revoke(ctx context.Context, userID string) error {
	if err := m.repo.DeleteToken(ctx, userID); err != nil {
		return err
	}
	m.flights.Forget(userID)
	log.FromCtx(ctx).Info().Str("user_id", userID).Msg("google token revoked")
	return nil
}

func (m *Manager) Status(ctx context.Context, userID string) (core.TokenStatus, error) {
	tok, err := m.repo.GetToken(ctx, userID)
	if errors.Is(err, core.ErrTokenMissing) {
		return core.TokenStatus{UserID: userID}, nil
	}
	if err != nil {
		return core.TokenStatus{}, err
	}

	updated := tok.UpdatedAt
	return core.TokenStatus{
		UserID:    userID,
		Connected: true,
		ExpiresAt: tok.ExpiresAt,
		UpdatedAt: &updated,
	}, nil
}
