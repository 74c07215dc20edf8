package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/foxseedlab/readyup/internal/config"
)

type envConfig struct {
	Env                           string `env:"ENV" envDefault:"production"`
	DiscordToken                  string `env:"DISCORD_TOKEN,required"`
	DiscordGuildID                string `env:"DISCORD_GUILD_ID,required"`
	DataDir                       string `env:"DATA_DIR" envDefault:"data"`
	DisplayTimezone               string `env:"DISPLAY_TIMEZONE" envDefault:"Europe/Stockholm"`
	ETAExpirationMinutes          int    `env:"ETA_EXPIRATION_MINUTES" envDefault:"60"`
	SessionInactivityTimeoutHours int    `env:"SESSION_INACTIVITY_TIMEOUT_HOURS" envDefault:"3"`
	SweepIntervalSeconds          int    `env:"SWEEP_INTERVAL_SECONDS" envDefault:"60"`
	LockTimeoutSeconds            int    `env:"LOCK_TIMEOUT_SECONDS" envDefault:"5"`
	NoShowWebhookURL              string `env:"NOSHOW_WEBHOOK_URL"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                           raw.Env,
		DiscordToken:                  raw.DiscordToken,
		DiscordGuildID:                raw.DiscordGuildID,
		DataDir:                       raw.DataDir,
		DisplayTimezone:               raw.DisplayTimezone,
		ETAExpirationMinutes:          raw.ETAExpirationMinutes,
		SessionInactivityTimeoutHours: raw.SessionInactivityTimeoutHours,
		SweepIntervalSeconds:          raw.SweepIntervalSeconds,
		LockTimeoutSeconds:            raw.LockTimeoutSeconds,
		NoShowWebhookURL:              raw.NoShowWebhookURL,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
