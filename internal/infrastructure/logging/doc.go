// Package logging builds the structured zap loggers used across the host.
//
// Two modes are supported:
//   - Production: JSON output for machine parsing
//   - Development: colored console output (LOG_DEV=true)
//
// Components receive a *zap.Logger and derive a named child:
//
//	logger := logging.NewOrNop(logging.FromConfig(cfg.Logging))
//	bridgeLog := logger.Named("bridge")
//	bridgeLog.Debug("dropped message", zap.String("card_id", id))
package logging
