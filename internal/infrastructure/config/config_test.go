package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 2, cfg.API.Retries)

	assert.Equal(t, "arcadia.db", cfg.Store.Path)

	assert.Equal(t, 2, cfg.Feed.MaxSilentRetries)
	assert.Equal(t, 5*time.Second, cfg.Feed.ScriptTimeout)

	assert.Equal(t, 5, cfg.Analytics.BatchSize)

	assert.Equal(t, "8000", cfg.Authority.Port)
	assert.Equal(t, 100, cfg.Authority.RateLimit.RequestsPerSecond)
	assert.True(t, cfg.Authority.RateLimit.Enabled)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	require.NoError(t, cfg.Validate())
}

func TestLoadOrDefault(t *testing.T) {
	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, "arcadia.db", cfg.Store.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"ARCADIA_API_BASE":         "https://api.example.test",
		"ARCADIA_API_TIMEOUT":      "3s",
		"ARCADIA_STORE_PATH":       "/tmp/progress.db",
		"ARCADIA_FEED_MAX_RETRIES": "4",
		"ARCADIA_ANALYTICS_BATCH":  "10",
		"PORT":                     "9000",
		"RATE_LIMIT_ENABLED":       "false",
		"LOG_LEVEL":                "debug",
		"LOG_DEV":                  "true",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.test", cfg.API.BaseURL)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
	assert.Equal(t, "/tmp/progress.db", cfg.Store.Path)
	assert.Equal(t, 4, cfg.Feed.MaxSilentRetries)
	assert.Equal(t, 10, cfg.Analytics.BatchSize)
	assert.Equal(t, "9000", cfg.Authority.Port)
	assert.False(t, cfg.Authority.RateLimit.Enabled)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	// Untouched sections keep their defaults
	assert.Equal(t, 2, cfg.API.Retries)
	assert.Equal(t, "0.0.0.0", cfg.Authority.Host)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "arcadia.yaml")
	content := `
api:
  base_url: https://file.example.test
  retries: 5
feed:
  max_silent_retries: 1
logging:
  level: warn
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Run("file overlays defaults", func(t *testing.T) {
		cfg, err := LoadFile(path)
		require.NoError(t, err)

		assert.Equal(t, "https://file.example.test", cfg.API.BaseURL)
		assert.Equal(t, 5, cfg.API.Retries)
		assert.Equal(t, 1, cfg.Feed.MaxSilentRetries)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, 5, cfg.Analytics.BatchSize)
	})

	t.Run("environment wins over file", func(t *testing.T) {
		t.Setenv("LOG_LEVEL", "error")

		cfg, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "error", cfg.Logging.Level)
		assert.Equal(t, 5, cfg.API.Retries)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "empty base url", mutate: func(c *Config) { c.API.BaseURL = "" }, wantErr: true},
		{name: "relative base url", mutate: func(c *Config) { c.API.BaseURL = "/api" }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.API.Retries = -1 }, wantErr: true},
		{name: "negative silent retries", mutate: func(c *Config) { c.Feed.MaxSilentRetries = -1 }, wantErr: true},
		{name: "zero batch", mutate: func(c *Config) { c.Analytics.BatchSize = 0 }, wantErr: true},
		{name: "zero silent retries allowed", mutate: func(c *Config) { c.Feed.MaxSilentRetries = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
