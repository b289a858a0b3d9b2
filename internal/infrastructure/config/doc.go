// Package config provides 12-factor configuration for the feed host and the
// reference authority.
//
// Configuration starts from Default, is optionally overlaid by a YAML file and
// is finally overridden by environment variables.
//
// Configuration Sections:
//   - API: remote authority base URL, timeout, retries, client rate limit
//   - Store: local progress database path
//   - Feed: silent retry cap and surface timeouts
//   - Sync: flush timeout and periodic flush interval
//   - Analytics: client-side batch size for fire-and-forget events
//   - Authority: reference server bind address, catalog and rate limit
//   - Logging: log level and output format
//
// Example Usage:
//
//	cfg, err := config.LoadFile("arcadia.yaml")
//	if err != nil {
//		cfg = config.LoadOrDefault()
//	}
//
// Environment Variables:
//   - ARCADIA_API_BASE, ARCADIA_API_TIMEOUT, ARCADIA_API_RETRIES, ARCADIA_API_RPS
//   - ARCADIA_STORE_PATH
//   - ARCADIA_FEED_MAX_RETRIES, ARCADIA_FEED_LOAD_TIMEOUT, ARCADIA_SCRIPT_TIMEOUT, ARCADIA_SURFACE_INBOX
//   - ARCADIA_SYNC_FLUSH_TIMEOUT, ARCADIA_SYNC_INTERVAL
//   - ARCADIA_ANALYTICS_BATCH
//   - PORT, HOST, ARCADIA_CATALOG, RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - LOG_LEVEL, LOG_DEV
package config
