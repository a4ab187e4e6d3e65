package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/caseflow")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "caseflow-api", cfg.ServiceName)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 30*time.Minute, cfg.SessionInactivityTimeout)
	assert.Equal(t, 12*time.Hour, cfg.SessionAbsoluteTimeout)
	assert.Equal(t, 5*time.Minute, cfg.SessionActivityInterval)
	assert.Equal(t, 5, cfg.SessionMaxPerUser)
	assert.Equal(t, "caseflow_session", cfg.SessionCookieName)
	assert.Equal(t, "X-CSRF-Token", cfg.CSRFHeaderName)
	assert.Equal(t, "X-Org-ID", cfg.OrgHeaderName)
	assert.Equal(t, "X-API-Key", cfg.APIKeyHeaderName)
	assert.False(t, cfg.RateLimitDisabled)
	assert.Equal(t, 5, cfg.LockoutMaxAttempts)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	// t.Setenv registers the restore; envconfig only treats an unset
	// variable as missing.
	t.Setenv("DATABASE_URL", "")
	require.NoError(t, os.Unsetenv("DATABASE_URL"))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/caseflow")
	t.Setenv("SESSION_INACTIVITY_TIMEOUT", "10m")
	t.Setenv("RATE_LIMIT_DISABLED", "true")
	t.Setenv("HTTP_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, cfg.SessionInactivityTimeout)
	assert.True(t, cfg.RateLimitDisabled)
	assert.Equal(t, 9090, cfg.HTTPPort)
}

func TestLoadValidatesDefaultOrgID(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/caseflow")
	t.Setenv("DEFAULT_ORG_ID", "not-a-uuid")

	_, err := Load()
	assert.Error(t, err)
}

func TestDefaultOrgParsing(t *testing.T) {
	cfg := &Config{}
	_, ok := cfg.DefaultOrg()
	assert.False(t, ok)

	cfg.DefaultOrgID = "7f9c24e8-3b12-4a4f-9f25-5a8c9e1d6b17"
	id, ok := cfg.DefaultOrg()
	require.True(t, ok)
	assert.Equal(t, "7f9c24e8-3b12-4a4f-9f25-5a8c9e1d6b17", id.String())
}
