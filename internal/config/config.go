// Package config loads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port           string        `env:"KIDQUEST_PORT" envDefault:"8080"`
	DBPath         string        `env:"KIDQUEST_DB_PATH" envDefault:"kidquest.db"`
	LogLevel       string        `env:"KIDQUEST_LOG_LEVEL" envDefault:"info"`
	LogFormat      string        `env:"KIDQUEST_LOG_FORMAT" envDefault:"text"`
	BaseURL        string        `env:"KIDQUEST_BASE_URL" envDefault:"http://localhost:8080"`
	JWTSecret      string        `env:"KIDQUEST_JWT_SECRET,required,notEmpty"`
	JWTIssuer      string        `env:"KIDQUEST_JWT_ISSUER"`
	AdminEmails    []string      `env:"KIDQUEST_ADMIN_EMAILS" envSeparator:","`
	InviteTTL      time.Duration `env:"KIDQUEST_INVITE_TTL" envDefault:"72h"`
	PostmarkToken  string        `env:"KIDQUEST_POSTMARK_TOKEN"`
	FromEmail      string        `env:"KIDQUEST_FROM_EMAIL" envDefault:"noreply@kidquest.local"`
	Timezone       string        `env:"KIDQUEST_TIMEZONE" envDefault:"UTC"`
	AllowedOrigins []string      `env:"KIDQUEST_ALLOWED_ORIGINS" envSeparator:","`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.InviteTTL <= 0 {
		return errors.New("KIDQUEST_INVITE_TTL must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("KIDQUEST_TIMEZONE: %w", err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("KIDQUEST_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// Location returns the time zone used for recurrence periods.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Addr is the listen address.
func (c Config) Addr() string {
	return ":" + c.Port
}
