// Package config provides environment variable-based configuration loading.
//
// Purpose:
//
//	This package defines the service configuration structure and provides
//	functions to load configuration from environment variables using envconfig.
//
// Dependencies:
//   - github.com/kelseyhightower/envconfig: Environment variable parsing
//
// Key Responsibilities:
//   - Config struct defines all service configuration fields
//   - Load reads and validates environment variables
//   - MustLoad exits the process if configuration is invalid
//
// Debugging Notes:
//   - Required fields: DATABASE_URL
//   - Redis is optional; the in-memory rate limiter is used if not configured
//   - RATE_LIMIT_DISABLED short-circuits all quota checks (test execution only)
//
// Thread Safety:
//   - Config struct is read-only after loading
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/kelseyhightower/envconfig"
)

// Config represents runtime configuration for the caseflow API server.
// All fields are populated from environment variables with defaults where
// specified. Required fields must be set or Load/MustLoad will return an error.
type Config struct {
	// ServiceName is emitted in logs and metrics.
	ServiceName string `envconfig:"SERVICE_NAME" default:"caseflow-api"`
	// HTTPPort is the port the HTTP server listens on.
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`
	// DatabaseURL is the Postgres connection string for the primary database.
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	// RedisAddr is the host:port of the Redis instance used for rate-limit
	// counters and login lockout tracking. Optional.
	RedisAddr string `envconfig:"REDIS_ADDR" default:""`
	// RedisPassword is the optional password for Redis authentication.
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	// RedisDB selects the logical Redis database index.
	RedisDB int `envconfig:"REDIS_DB" default:"0"`
	// LogLevel controls the zerolog level (debug, info, warn, error).
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	// Environment describes the current deployment environment (development,
	// staging, production). HSTS is only emitted in production.
	Environment string `envconfig:"ENVIRONMENT" default:"development"`

	// SessionInactivityTimeout expires sessions idle longer than this.
	SessionInactivityTimeout time.Duration `envconfig:"SESSION_INACTIVITY_TIMEOUT" default:"30m"`
	// SessionAbsoluteTimeout expires sessions older than this regardless of activity.
	SessionAbsoluteTimeout time.Duration `envconfig:"SESSION_ABSOLUTE_TIMEOUT" default:"12h"`
	// SessionActivityInterval throttles last-activity writes to at most one
	// per interval per session.
	SessionActivityInterval time.Duration `envconfig:"SESSION_ACTIVITY_INTERVAL" default:"5m"`
	// SessionMaxPerUser caps concurrent sessions per user; the oldest-by-activity
	// sessions beyond the cap are force-expired best-effort.
	SessionMaxPerUser int `envconfig:"SESSION_MAX_PER_USER" default:"5"`

	// CSRFCookieName is the cookie half of the token pair.
	CSRFCookieName string `envconfig:"CSRF_COOKIE_NAME" default:"caseflow_csrf"`
	// CSRFHeaderName is the header half of the token pair.
	CSRFHeaderName string `envconfig:"CSRF_HEADER_NAME" default:"X-CSRF-Token"`
	// CSRFTokenTTL bounds the life of a minted CSRF cookie.
	CSRFTokenTTL time.Duration `envconfig:"CSRF_TOKEN_TTL" default:"2h"`

	// SessionCookieName is the name of the session cookie.
	SessionCookieName string `envconfig:"SESSION_COOKIE_NAME" default:"caseflow_session"`
	// OrgHeaderName is the tenant-selection header clients send to pick an
	// active org among their memberships.
	OrgHeaderName string `envconfig:"ORG_HEADER_NAME" default:"X-Org-ID"`
	// APIKeyHeaderName carries internal-service API keys.
	APIKeyHeaderName string `envconfig:"API_KEY_HEADER_NAME" default:"X-API-Key"`

	// RateLimitDisabled turns off all quota checks. Test execution only.
	RateLimitDisabled bool `envconfig:"RATE_LIMIT_DISABLED" default:"false"`

	// DefaultOrgID, when set, is the org new users are given a USER membership
	// in at first login. Optional.
	DefaultOrgID string `envconfig:"DEFAULT_ORG_ID" default:""`

	// KafkaBrokers is a comma-separated broker list. If empty, audit events
	// are logged instead of published.
	KafkaBrokers string `envconfig:"KAFKA_BROKERS" default:""`
	// KafkaTopic is the topic for security audit events.
	KafkaTopic string `envconfig:"KAFKA_TOPIC" default:"audit.security"`
	// KafkaClientID is the client ID used when connecting to Kafka.
	KafkaClientID string `envconfig:"KAFKA_CLIENT_ID" default:"caseflow-api"`

	// LockoutMaxAttempts is the failed-login ceiling before lockout.
	LockoutMaxAttempts int `envconfig:"LOCKOUT_MAX_ATTEMPTS" default:"5"`
	// LockoutDuration is how long a locked account stays locked.
	LockoutDuration time.Duration `envconfig:"LOCKOUT_DURATION" default:"15m"`
	// LockoutWindow is the window failed attempts are counted in.
	LockoutWindow time.Duration `envconfig:"LOCKOUT_WINDOW" default:"15m"`
}

// Load reads environment variables into Config, applying defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: process env: %w", err)
	}
	if cfg.DefaultOrgID != "" {
		if _, err := uuid.Parse(cfg.DefaultOrgID); err != nil {
			return nil, fmt.Errorf("config: DEFAULT_ORG_ID: %w", err)
		}
	}
	return &cfg, nil
}

// MustLoad returns Config or exits the process.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// DefaultOrg returns the parsed default org ID and whether one is configured.
func (c *Config) DefaultOrg() (uuid.UUID, bool) {
	if c.DefaultOrgID == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(c.DefaultOrgID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}
