// Copyright 2026 The LendCore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `envconfig:"SERVER"`
	Database      DatabaseConfig      `envconfig:"DB"`
	Redis         RedisConfig         `envconfig:"REDIS"`
	Auth          AuthConfig          `envconfig:"AUTH"`
	Authz         AuthzConfig         `envconfig:"AUTHZ"`
	Bootstrap     BootstrapConfig     `envconfig:"LC_BOOTSTRAP"`
	Observability ObservabilityConfig `envconfig:"OBSERVABILITY"`
	RateLimit     RateLimitConfig     `envconfig:"RATELIMIT"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host           string        `split_words:"true" default:"0.0.0.0"`
	Port           string        `split_words:"true" default:"8080"`
	ReadTimeout    time.Duration `split_words:"true" default:"15s"`
	WriteTimeout   time.Duration `split_words:"true" default:"15s"`
	IdleTimeout    time.Duration `split_words:"true" default:"60s"`
	RequestTimeout time.Duration `split_words:"true" default:"30s"`
	// Production enables HSTS and the strict security header set.
	Production bool `split_words:"true" default:"false"`
	// TrustedProxies lists proxy addresses or CIDRs whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty trusts none.
	TrustedProxies []string `split_words:"true"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string        `split_words:"true" default:"localhost"`
	Port            string        `split_words:"true" default:"5432"`
	User            string        `split_words:"true" default:"lendcore"`
	Password        string        `split_words:"true"`
	Name            string        `split_words:"true" default:"lendcore"`
	SSLMode         string        `split_words:"true" default:"disable"`
	MaxOpenConns    int           `split_words:"true" default:"25"`
	MaxIdleConns    int           `split_words:"true" default:"5"`
	ConnMaxLifetime time.Duration `split_words:"true" default:"5m"`
}

// RedisConfig holds the permission cache connection. An empty Addr disables
// the cache.
type RedisConfig struct {
	Addr     string `split_words:"true"`
	Password string `split_words:"true"`
	DB       int    `split_words:"true" default:"0"`
	Prefix   string `split_words:"true" default:"lendcore:authz"`
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	JWTSecret   string `split_words:"true"`
	JWTIssuer   string `split_words:"true"`
	JWTAudience string `split_words:"true"`
}

// AuthzConfig tunes the access control core
type AuthzConfig struct {
	CacheTTL      time.Duration `split_words:"true" default:"5m"`
	MaxDelegation time.Duration `split_words:"true" default:"720h"`
	// Retention is how long expired links and delegations are kept before
	// cleanup purges them.
	Retention time.Duration `split_words:"true" default:"720h"`
}

// BootstrapConfig names the first platform operator.
type BootstrapConfig struct {
	AdminUserID string `split_words:"true"`
}

// ObservabilityConfig holds logging and tracing configuration.
// Each OBSERVABILITY_* variable falls back to its unprefixed name.
type ObservabilityConfig struct {
	LogLevel       string  `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string  `envconfig:"LOG_FORMAT" default:"json"`
	OTELEnabled    bool    `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint   string  `envconfig:"OTEL_ENDPOINT"`
	OTELInsecure   bool    `envconfig:"OTEL_INSECURE" default:"false"`
	SamplingRate   float64 `envconfig:"OTEL_SAMPLING_RATE" default:"1"`
	ServiceName    string  `envconfig:"OTEL_SERVICE_NAME" default:"lendcore"`
	ServiceVersion string  `envconfig:"OTEL_SERVICE_VERSION" default:"0.1.0"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64 `envconfig:"RPS" default:"10"`
	Burst             int     `split_words:"true" default:"20"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return errors.New("DB_PASSWORD is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < 32 {
		return errors.New("AUTH_JWT_SECRET must be at least 32 bytes")
	}
	if c.Authz.CacheTTL < 0 {
		return errors.New("AUTHZ_CACHE_TTL must not be negative")
	}
	if c.Authz.MaxDelegation <= 0 {
		return errors.New("AUTHZ_MAX_DELEGATION must be positive")
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("RATELIMIT_RPS and RATELIMIT_BURST must be positive")
	}
	return nil
}
