package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/brain/pkg/log"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type AppConfig struct {
	RuntimePath string `env:"BRAIN_RUNTIME_PATH" envDefault:".brain"`

	// Storage
	DBDriver    string `env:"DB_DRIVER" envDefault:"sqlite"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Transport Flags
	EnableTelegram bool `env:"ENABLE_TELEGRAM" envDefault:"false"`
	EnableHTTP     bool `env:"ENABLE_HTTP" envDefault:"true"`

	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	// Assistant behaviour
	TimeZone       string        `env:"BRAIN_TIMEZONE" envDefault:"Europe/Prague"`
	EventDuration  time.Duration `env:"BRAIN_EVENT_DURATION" envDefault:"30m"`
	HandlerTimeout time.Duration `env:"BRAIN_HANDLER_TIMEOUT" envDefault:"30s"`
	WriteTimeout   time.Duration `env:"BRAIN_WRITEBACK_TIMEOUT" envDefault:"15s"`
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse App config")
	}
	// relative paths live under the home directory
	c.RuntimePath = GetRuntimePath()
	return c
}

func (c AppConfig) GetRuntimePath() string {
	return c.RuntimePath
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "brain.db")
}

// GetDSN returns the data source for the configured driver. SQLite falls
// back to a file in the runtime directory.
func (c AppConfig) GetDSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.GetDatabasePath()
}

func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
