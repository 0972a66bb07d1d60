package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sandevgo/brain/internal/config"
	"github.com/sandevgo/brain/internal/core"
	"github.com/sandevgo/brain/pkg/retry"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
)

// revokedCodes are token endpoint error codes that only a new consent fixes.
var revokedCodes = map[string]bool{
	"invalid_grant":       true,
	"unauthorized_client": true,
	"invalid_client":      true,
}

// OAuth is the client side of Google's OAuth2 flow: consent URL, code
// exchange and refresh token exchange.
type OAuth struct {
	cfg        *oauth2.Config
	httpClient *http.Client
	states     *StateSigner
	configured bool
	now        core.Clock
}

func NewOAuth(c *config.OAuthConfig, httpClient *http.Client) *OAuth {
	endpoint := googleoauth.Endpoint
	if c.TokenURL != "" {
		endpoint.TokenURL = c.TokenURL
	}
	if c.AuthURL != "" {
		endpoint.AuthURL = c.AuthURL
	}

	return &OAuth{
		cfg: &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			RedirectURL:  c.RedirectURL,
			Scopes:       c.Scopes,
			Endpoint:     endpoint,
		},
		httpClient: httpClient,
		states:     NewStateSigner(c.ClientSecret),
		configured: c.Configured(),
		now:        time.Now,
	}
}

func (o *OAuth) withClient(ctx context.Context) context.Context {
	if o.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
}

// AuthURL asks for offline access and forces the consent screen so Google
// hands out a refresh token every time.
func (o *OAuth) AuthURL(state string) string {
	return o.cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	)
}

// ConsentURL is the consent link for userID with a signed state, or empty
// when no OAuth client is configured.
func (o *OAuth) ConsentURL(userID string) string {
	if !o.configured || userID == "" {
		return ""
	}
	return o.AuthURL(o.states.Sign(userID))
}

// VerifyState returns the user a consent callback belongs to.
func (o *OAuth) VerifyState(state string) (string, error) {
	return o.states.Verify(state)
}

func (o *OAuth) Exchange(ctx context.Context, code string) (core.RefreshedToken, error) {
	tok, err := o.cfg.Exchange(o.withClient(ctx), code)
	if err != nil {
		return core.RefreshedToken{}, fmt.Errorf("code exchange failed: %w", classifyTokenError(err))
	}
	if tok.RefreshToken == "" {
		return core.RefreshedToken{}, errors.New("google granted no refresh token")
	}
	return o.validate(tok)
}

// Refresh performs one grant_type=refresh_token exchange. Revocation is
// reported as a permanent core.ErrTokenRevoked, other client errors as
// permanent, and network or 5xx failures as retryable.
func (o *OAuth) Refresh(ctx context.Context, refreshToken string) (core.RefreshedToken, error) {
	src := o.cfg.TokenSource(o.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return core.RefreshedToken{}, classifyTokenError(err)
	}
	return o.validate(tok)
}

func (o *OAuth) validate(tok *oauth2.Token) (core.RefreshedToken, error) {
	if tok.AccessToken == "" {
		return core.RefreshedToken{}, retry.Permanent(errors.New("token response has no access_token"))
	}
	if tok.Expiry.IsZero() || !tok.Expiry.After(o.now()) {
		return core.RefreshedToken{}, retry.Permanent(fmt.Errorf("token response has unusable expiry %v", tok.Expiry))
	}
	return core.RefreshedToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry.UTC(),
	}, nil
}

func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		// transport level failure
		return err
	}

	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}

	switch {
	case revokedCodes[re.ErrorCode] || status == http.StatusUnauthorized:
		return retry.Permanent(fmt.Errorf("%w: %s", core.ErrTokenRevoked, describe(re)))
	case status == http.StatusTooManyRequests || status >= 500:
		return err
	default:
		return retry.Permanent(fmt.Errorf("token endpoint rejected request: %s", describe(re)))
	}
}

func describe(re *oauth2.RetrieveError) string {
	if re.ErrorCode == "" {
		return re.Error()
	}
	if re.ErrorDescription != "" {
		return re.ErrorCode + " (" + re.ErrorDescription + ")"
	}
	return re.ErrorCode
}
