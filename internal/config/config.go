// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime settings for the service.
type Config struct {
	Port       string `envconfig:"PORT" default:"8080"`
	AdminToken string `envconfig:"ADMIN_TOKEN"`

	// SignupSecret keys the capability-token HMAC. LegacySalt enables
	// acceptance of MD5 tokens from pre-migration installations.
	SignupSecret string `envconfig:"SIGNUP_SECRET" required:"true"`
	LegacySalt   string `envconfig:"LEGACY_SALT"`

	// ConfirmGrace is how long an unconfirmed signup holds its place.
	ConfirmGrace time.Duration `envconfig:"CONFIRM_GRACE" default:"30m"`
	// SweepInterval is how often expired holds are purged.
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`

	DB Database
}

// Database holds PostgreSQL connection settings.
type Database struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"`
	Name     string `envconfig:"DB_NAME" default:"signupd"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

// DSN builds a libpq-compatible connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}
