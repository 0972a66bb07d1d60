package config

import (
	"context"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/brain/pkg/log"
	"github.com/sandevgo/brain/pkg/retry"
)

type OAuthConfig struct {
	ClientID     string   `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string   `env:"GOOGLE_CLIENT_SECRET"`
	RedirectURL  string   `env:"GOOGLE_REDIRECT_URI" envDefault:"http://localhost:8080/v1/google/callback"`
	Scopes       []string `env:"GOOGLE_SCOPES" envSeparator:"," envDefault:"https://www.googleapis.com/auth/calendar,https://www.googleapis.com/auth/tasks"`

	// Endpoint overrides, used against fake servers
	TokenURL         string `env:"GOOGLE_TOKEN_URL"`
	AuthURL          string `env:"GOOGLE_AUTH_URL"`
	CalendarEndpoint string `env:"GOOGLE_CALENDAR_ENDPOINT"`
	TasksEndpoint    string `env:"GOOGLE_TASKS_ENDPOINT"`

	SafetyMargin   time.Duration `env:"TOKEN_SAFETY_MARGIN" envDefault:"60s"`
	RefreshTimeout time.Duration `env:"TOKEN_REFRESH_TIMEOUT" envDefault:"10s"`
	CallTimeout    time.Duration `env:"GOOGLE_CALL_TIMEOUT" envDefault:"10s"`
	MaxRetries     int           `env:"PROVIDER_MAX_RETRIES" envDefault:"2"`
	InitialBackoff time.Duration `env:"PROVIDER_INITIAL_BACKOFF" envDefault:"200ms"`
	MaxBackoff     time.Duration `env:"PROVIDER_MAX_BACKOFF" envDefault:"5s"`
}

func NewOAuthConfig(ctx context.Context) *OAuthConfig {
	c := &OAuthConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse OAuth config")
	}
	return c
}

// Configured reports whether the consent flow can run.
func (c OAuthConfig) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

func (c OAuthConfig) RetryConfig() *retry.Config {
	cfg := retry.NewDefaultConfig()
	cfg.MaxRetries = c.MaxRetries
	cfg.InitialDelay = c.InitialBackoff
	cfg.MaxDelay = c.MaxBackoff
	return cfg
}
