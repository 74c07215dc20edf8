package config

import "testing"

func validConfig() *Config {
	return &Config{
		Env:                           "development",
		DiscordToken:                  "token",
		DiscordGuildID:                "guild",
		DataDir:                       "data",
		DisplayTimezone:               "Europe/Stockholm",
		ETAExpirationMinutes:          60,
		SessionInactivityTimeoutHours: 3,
		SweepIntervalSeconds:          60,
		LockTimeoutSeconds:            5,
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_MissingRequired(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when required fields are missing")
	}
}

func TestValidate_InvalidGracePeriod(t *testing.T) {
	cfg := validConfig()
	cfg.ETAExpirationMinutes = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive expiration minutes")
	}
}

func TestValidate_InvalidTimezone(t *testing.T) {
	cfg := validConfig()
	cfg.DisplayTimezone = "Moon/Tycho"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestValidate_InvalidLockTimeout(t *testing.T) {
	cfg := validConfig()
	cfg.LockTimeoutSeconds = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive lock timeout")
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	if !cfg.IsDevelopment() {
		t.Fatal("expected development mode")
	}
	cfg.Env = "production"
	if cfg.IsDevelopment() {
		t.Fatal("expected non-development mode")
	}
}
