// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PrimeHub Contributors

// Package config loads hubauth configuration from defaults, an optional
// YAML file, HUBAUTH_* environment variables, and command-line flags,
// in that order of precedence.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Config is the root hubauth configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Session  SessionConfig  `koanf:"session"`
	Telegram TelegramConfig `koanf:"telegram"`
	X        XConfig        `koanf:"x"`
	Log      LogConfig      `koanf:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `koanf:"addr"`
	// BaseURL is the externally visible origin, used to build password
	// reset links and OAuth redirect targets.
	BaseURL string `koanf:"base_url"`
	// FrontendPath is where successful OAuth logins land.
	FrontendPath string `koanf:"frontend_path"`
	// LoginPath is where failed OAuth logins land, with ?error= appended.
	LoginPath string `koanf:"login_path"`
	// ObservabilityAddr serves /metrics and health probes.
	ObservabilityAddr string        `koanf:"observability_addr"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig holds the PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string `koanf:"url"`
}

// SessionConfig holds session cookie and lifetime settings.
type SessionConfig struct {
	CookieName     string        `koanf:"cookie_name"`
	Expiry         time.Duration `koanf:"expiry"`
	RememberExpiry time.Duration `koanf:"remember_expiry"`
	// CookieSecure should be false only for local development over plain HTTP.
	CookieSecure bool `koanf:"cookie_secure"`
}

// TelegramConfig holds the Login Widget and bot settings.
type TelegramConfig struct {
	BotToken string `koanf:"bot_token"`
	// AllowSignup controls whether an unknown Telegram account may create
	// a new user, or only log into an existing one.
	AllowSignup bool `koanf:"allow_signup"`
	// NotifyEnabled turns on password-reset delivery through the bot.
	NotifyEnabled bool `koanf:"notify_enabled"`
}

// XConfig holds the X (Twitter) OAuth2 client settings.
type XConfig struct {
	ClientID     string   `koanf:"client_id"`
	ClientSecret string   `koanf:"client_secret"`
	RedirectURI  string   `koanf:"redirect_uri"`
	Scopes       []string `koanf:"scopes"`
}

// LogConfig holds structured logging settings.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]any {
	return map[string]any{
		"server.addr":               ":8080",
		"server.base_url":           "http://localhost:8080",
		"server.frontend_path":      "/prime-hub/",
		"server.login_path":         "/prime-hub/login",
		"server.observability_addr": "127.0.0.1:9100",
		"server.shutdown_timeout":   "10s",
		"session.cookie_name":       "hub_session",
		"session.expiry":            "24h",
		"session.remember_expiry":   "720h",
		"session.cookie_secure":     true,
		"telegram.allow_signup":     true,
		"telegram.notify_enabled":   false,
		"x.scopes":                  []string{"tweet.read", "users.read"},
		"log.format":                "json",
		"log.level":                 "info",
	}
}

// Load builds a Config from defaults, then the YAML file at path (if
// non-empty), then HUBAUTH_* environment variables, then flags.
// flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, oops.With("stage", "defaults").Wrap(err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.With("path", path).Wrap(err)
		}
	}

	// HUBAUTH_DATABASE_URL -> database.url
	err := k.Load(env.Provider("HUBAUTH_", ".", func(s string) string {
		return strings.Replace(
			strings.ToLower(strings.TrimPrefix(s, "HUBAUTH_")), "_", ".", 1)
	}), nil)
	if err != nil {
		return nil, oops.With("stage", "env").Wrap(err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.With("stage", "flags").Wrap(err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.With("stage", "unmarshal").Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that required settings are present and consistent.
func (c *Config) Validate() error {
	errb := oops.Code("CONFIG_INVALID")

	if c.Database.URL == "" {
		return errb.Errorf("database.url is required")
	}
	if c.Server.BaseURL == "" {
		return errb.Errorf("server.base_url is required")
	}
	if strings.HasSuffix(c.Server.BaseURL, "/") {
		c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	}
	if c.Session.Expiry <= 0 || c.Session.RememberExpiry <= 0 {
		return errb.Errorf("session expiries must be positive")
	}
	if c.Telegram.NotifyEnabled && c.Telegram.BotToken == "" {
		return errb.Errorf("telegram.bot_token is required when telegram.notify_enabled is set")
	}
	if (c.X.ClientID == "") != (c.X.ClientSecret == "") {
		return errb.Errorf("x.client_id and x.client_secret must be set together")
	}
	return nil
}
