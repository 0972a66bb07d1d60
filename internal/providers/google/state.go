package google

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"
)

const stateTTL = 15 * time.Minute

var ErrInvalidState = errors.New("invalid oauth state")

// StateSigner binds a consent round trip to the user who started it. The
// state is user id, expiry and an HMAC over both.
type StateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewStateSigner(secret string) *StateSigner {
	return &StateSigner{key: []byte(secret), ttl: stateTTL, now: time.Now}
}

func (s *StateSigner) Sign(userID string) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(userID)) + "." +
		strconv.FormatInt(s.now().Add(s.ttl).Unix(), 10)
	return payload + "." + s.mac(payload)
}

// Verify returns the user id the state was issued for.
func (s *StateSigner) Verify(state string) (string, error) {
	idx := strings.LastIndexByte(state, '.')
	if idx < 0 {
		return "", ErrInvalidState
	}
	payload, sig := state[:idx], state[idx+1:]
	if !hmac.Equal([]byte(sig), []byte(s.mac(payload))) {
		return "", ErrInvalidState
	}

	rawUser, rawExp, ok := strings.Cut(payload, ".")
	if !ok {
		return "", ErrInvalidState
	}
	exp, err := strconv.ParseInt(rawExp, 10, 64)
	if err != nil || s.now().Unix() > exp {
		return "", ErrInvalidState
	}
	user, err := base64.RawURLEncoding.DecodeString(rawUser)
	if err != nil || len(user) == 0 {
		return "", ErrInvalidState
	}
	return string(user), nil
}

func (s *StateSigner) mac(payload string) string {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
