package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/brain/pkg/log"
)

type NotifyConfig struct {
	Enabled     bool `env:"NOTIFY_ENABLED" envDefault:"true"`
	MorningHour int  `env:"MORNING_SUMMARY_HOUR" envDefault:"7"`
	// TaskSync stores the open tasks as a memory with every morning summary.
	TaskSync bool `env:"NOTIFY_TASK_SYNC" envDefault:"true"`

	ReminderInterval time.Duration `env:"REMINDER_CHECK_INTERVAL" envDefault:"5m"`
	ReminderLeadMin  time.Duration `env:"REMINDER_LEAD_MIN" envDefault:"10m"`
	ReminderLeadMax  time.Duration `env:"REMINDER_LEAD_MAX" envDefault:"20m"`

	// Tick is how often the scheduler looks at the clock.
	Tick        time.Duration `env:"NOTIFY_TICK" envDefault:"1m"`
	UserTimeout time.Duration `env:"NOTIFY_USER_TIMEOUT" envDefault:"30s"`
}

func NewNotifyConfig(ctx context.Context) *NotifyConfig {
	c := &NotifyConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Notify config")
	}
	if err := c.Validate(); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("invalid Notify config")
	}
	return c
}

func (c *NotifyConfig) Validate() error {
	switch {
	case c.MorningHour < 0 || c.MorningHour > 23:
		return fmt.Errorf("MORNING_SUMMARY_HOUR must be 0-23, got %d", c.MorningHour)
	case c.ReminderLeadMin < 0 || c.ReminderLeadMax <= c.ReminderLeadMin:
		return fmt.Errorf("reminder window %s-%s is empty", c.ReminderLeadMin, c.ReminderLeadMax)
	case c.ReminderInterval <= 0 || c.Tick <= 0:
		return fmt.Errorf("reminder interval and tick must be positive")
	}
	return nil
}
