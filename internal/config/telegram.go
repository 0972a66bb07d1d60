package config

import (
	"context"
	"slices"

	"github.com/caarlos0/env/v11"
	"github.com/sandevgo/brain/pkg/log"
)

type TelegramConfig struct {
	Token string `env:"TELEGRAM_TOKEN,required,notEmpty"`
	// Empty list lets everyone in.
	WhitelistedUsers []int64 `env:"WHITELISTED_USERS" envSeparator:","`
}

func NewTelegramConfig(ctx context.Context) *TelegramConfig {
	c := &TelegramConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse Telegram config")
	}
	return c
}

func (c TelegramConfig) IsAuthorized(userID int64) bool {
	if len(c.WhitelistedUsers) == 0 {
		return true
	}
	return slices.Contains(c.WhitelistedUsers, userID)
}
