package core

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenMissing means the user has no stored Google credentials.
	ErrTokenMissing = errors.New("google token missing")
	// ErrTokenRevoked means Google rejected the refresh token.
	ErrTokenRevoked = errors.New("google token revoked")
	// ErrTokenSuperseded means a new grant was stored while a refresh ran.
	ErrTokenSuperseded = errors.New("google token superseded")
	// ErrProviderUnavailable is a transient provider failure that outlived retries.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrEmbeddingUnavailable is returned when no embedding could be produced.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrClassificationIndeterminate is logged when no rule scores high enough.
	// It never reaches callers.
	ErrClassificationIndeterminate = errors.New("classification indeterminate")

	// ErrNoChannel means a notification has nowhere to go for this user.
	ErrNoChannel = errors.New("user has no notification channel")

	ErrUserNotFound = errors.New("user not found")
	ErrInvalidInput = errors.New("invalid input")
)

// HandlerError carries the intent whose handler failed.
type HandlerError struct {
	Intent Intent
	Err    error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s failed: %v", e.Intent, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// NeedsReconnect reports whether err can only be fixed by the user
// granting access again.
func NeedsReconnect(err error) bool {
	return errors.Is(err, ErrTokenMissing) || errors.Is(err, ErrTokenRevoked)
}
