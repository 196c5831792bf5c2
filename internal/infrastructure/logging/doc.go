// Package logging provides structured logging for the IoT device daemons.
//
// This package wraps Go's standard log/slog package to provide consistent,
// structured logging across all three daemons.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (daemon, thing) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "camera-sub", cfg.Thing.Name)
//	logger.Info("subscribed", "topic", topic)
//	logger.Error("capture failed", "error", err)
//
// Never log broker credentials or private key paths' contents.
package logging
