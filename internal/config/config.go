package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env                           string
	DiscordToken                  string
	DiscordGuildID                string
	DataDir                       string
	DisplayTimezone               string
	ETAExpirationMinutes          int
	SessionInactivityTimeoutHours int
	SweepIntervalSeconds          int
	LockTimeoutSeconds            int
	NoShowWebhookURL              string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.ETAExpirationMinutes <= 0 {
		return fmt.Errorf("ETA_EXPIRATION_MINUTES must be positive, got %d", c.ETAExpirationMinutes)
	}
	if c.SessionInactivityTimeoutHours <= 0 {
		return fmt.Errorf("SESSION_INACTIVITY_TIMEOUT_HOURS must be positive, got %d", c.SessionInactivityTimeoutHours)
	}
	if c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive, got %d", c.SweepIntervalSeconds)
	}
	if c.LockTimeoutSeconds <= 0 {
		return fmt.Errorf("LOCK_TIMEOUT_SECONDS must be positive, got %d", c.LockTimeoutSeconds)
	}
	if _, err := time.LoadLocation(c.DisplayTimezone); err != nil {
		return fmt.Errorf("DISPLAY_TIMEZONE is invalid: %w", err)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DISCORD_TOKEN", value: c.DiscordToken},
		{name: "DISCORD_GUILD_ID", value: c.DiscordGuildID},
		{name: "DATA_DIR", value: c.DataDir},
		{name: "DISPLAY_TIMEZONE", value: c.DisplayTimezone},
	}
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) GracePeriod() time.Duration {
	return time.Duration(c.ETAExpirationMinutes) * time.Minute
}

func (c *Config) InactivityTimeout() time.Duration {
	return time.Duration(c.SessionInactivityTimeoutHours) * time.Hour
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutSeconds) * time.Second
}
