package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all host and authority configuration.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Store     StoreConfig     `yaml:"store"`
	Feed      FeedConfig      `yaml:"feed"`
	Sync      SyncConfig      `yaml:"sync"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Authority AuthorityConfig `yaml:"authority"`
	Logging   LogConfig       `yaml:"logging"`
}

// APIConfig holds remote authority client settings.
type APIConfig struct {
	BaseURL   string        `envconfig:"ARCADIA_API_BASE" yaml:"base_url"`
	Timeout   time.Duration `envconfig:"ARCADIA_API_TIMEOUT" yaml:"timeout"`
	Retries   int           `envconfig:"ARCADIA_API_RETRIES" yaml:"retries"`
	RateLimit float64       `envconfig:"ARCADIA_API_RPS" yaml:"rate_limit"`
}

// StoreConfig holds local durable store settings.
type StoreConfig struct {
	Path string `envconfig:"ARCADIA_STORE_PATH" yaml:"path"`
}

// FeedConfig holds lifecycle supervisor settings.
type FeedConfig struct {
	MaxSilentRetries int           `envconfig:"ARCADIA_FEED_MAX_RETRIES" yaml:"max_silent_retries"`
	LoadTimeout      time.Duration `envconfig:"ARCADIA_FEED_LOAD_TIMEOUT" yaml:"load_timeout"`
	ScriptTimeout    time.Duration `envconfig:"ARCADIA_SCRIPT_TIMEOUT" yaml:"script_timeout"`
	InboxSize        int           `envconfig:"ARCADIA_SURFACE_INBOX" yaml:"inbox_size"`
}

// SyncConfig holds progress synchronization settings.
type SyncConfig struct {
	FlushTimeout time.Duration `envconfig:"ARCADIA_SYNC_FLUSH_TIMEOUT" yaml:"flush_timeout"`
	Interval     time.Duration `envconfig:"ARCADIA_SYNC_INTERVAL" yaml:"interval"`
}

// AnalyticsConfig holds analytics sink settings.
type AnalyticsConfig struct {
	BatchSize int `envconfig:"ARCADIA_ANALYTICS_BATCH" yaml:"batch_size"`
}

// AuthorityConfig holds reference authority server settings.
type AuthorityConfig struct {
	Port      string          `envconfig:"PORT" yaml:"port"`
	Host      string          `envconfig:"HOST" yaml:"host"`
	Catalog   string          `envconfig:"ARCADIA_CATALOG" yaml:"catalog"`
	GamesDir  string          `envconfig:"ARCADIA_GAMES_DIR" yaml:"games_dir"`
	PageSize  int             `envconfig:"ARCADIA_FEED_PAGE_SIZE" yaml:"page_size"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" yaml:"level"`
	Development bool   `envconfig:"LOG_DEV" yaml:"development"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" yaml:"rps"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" yaml:"burst"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" yaml:"enabled"`
}

// Load loads configuration from environment variables on top of Default.
func Load() (*Config, error) {
	cfg := Default()
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a YAML file over Default, then applies environment
// variables. Environment values win over file values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("config: api base url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: invalid api base url %q", c.API.BaseURL)
	}
	if c.API.Retries < 0 {
		return fmt.Errorf("config: retries must be >= 0, got %d", c.API.Retries)
	}
	if c.Feed.MaxSilentRetries < 0 {
		return fmt.Errorf("config: max silent retries must be >= 0, got %d", c.Feed.MaxSilentRetries)
	}
	if c.Authority.PageSize < 1 {
		return fmt.Errorf("config: feed page size must be >= 1, got %d", c.Authority.PageSize)
	}
	if c.Analytics.BatchSize < 1 {
		return fmt.Errorf("config: analytics batch size must be >= 1, got %d", c.Analytics.BatchSize)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 10 * time.Second,
			Retries: 2,
		},
		Store: StoreConfig{
			Path: "arcadia.db",
		},
		Feed: FeedConfig{
			MaxSilentRetries: 2,
			LoadTimeout:      15 * time.Second,
			ScriptTimeout:    5 * time.Second,
			InboxSize:        64,
		},
		Sync: SyncConfig{
			FlushTimeout: 10 * time.Second,
			Interval:     30 * time.Second,
		},
		Analytics: AnalyticsConfig{
			BatchSize: 5,
		},
		Authority: AuthorityConfig{
			Port:     "8000",
			Host:     "0.0.0.0",
			PageSize: 10,
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 100,
				Burst:             200,
				Enabled:           true,
			},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
	}
}
