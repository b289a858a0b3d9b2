// Command arcadia runs the feed host or the reference authority.
//
// Usage:
//
//	# Reference authority on :8000, serving games from ./games
//	ARCADIA_GAMES_DIR=./games arcadia authority
//
//	# Headless host against it, reading commands from stdin
//	ARCADIA_API_BASE=http://localhost:8000 arcadia host --category arcade
//
// Configuration comes from an optional YAML file (--config) with
// environment variables taking precedence.
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown; the host attempts a final flush
package main
