// Package config loads auth subsystem settings from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// Provider holds hosted identity provider settings.
type Provider struct {
	BaseURL string `env:"BASE_URL"`
	APIKey  string `env:"API_KEY"`
	JWKSURL string `env:"JWKS_URL"`
	Issuer  string `env:"ISSUER"`
}

// Backend holds application API settings.
type Backend struct {
	BaseURL string `env:"BASE_URL"`
}

// Popup holds OAuth popup flow settings.
type Popup struct {
	HostOrigin     string        `env:"HOST_ORIGIN"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:","`
	Timeout        time.Duration `env:"TIMEOUT" envDefault:"120s"`
	RelayAddr      string        `env:"RELAY_ADDR" envDefault:"127.0.0.1:0"`
}

// Store holds session persistence settings.
type Store struct {
	// Driver selects the backend: memory, sqlite, or redis.
	Driver   string `env:"DRIVER" envDefault:"memory"`
	DSN      string `env:"DSN"`
	RedisURL string `env:"REDIS_URL"`
}

// Config is the full auth subsystem configuration.
type Config struct {
	Provider Provider `envPrefix:"AUTH_PROVIDER_"`
	Backend  Backend  `envPrefix:"AUTH_BACKEND_"`
	Popup    Popup    `envPrefix:"AUTH_POPUP_"`
	Store    Store    `envPrefix:"AUTH_STORE_"`
}

// Load reads the configuration from the environment and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "could not parse environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid configuration")
	}
	return cfg, nil
}

// Validate checks the loaded values.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Provider,
		validation.Field(&c.Provider.BaseURL, validation.Required, is.URL),
		validation.Field(&c.Provider.JWKSURL, is.URL),
	); err != nil {
		return err
	}

	if err := validation.ValidateStruct(&c.Backend,
		validation.Field(&c.Backend.BaseURL, validation.Required, is.URL),
	); err != nil {
		return err
	}

	return validation.ValidateStruct(&c.Store,
		validation.Field(&c.Store.Driver, validation.Required, validation.In("memory", "sqlite", "redis")),
	)
}
