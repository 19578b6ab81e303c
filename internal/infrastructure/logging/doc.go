// Package logging provides structured logging for the QuickBars hub.
//
// It wraps log/slog so every component logs with the same handler, level
// and default fields (service, version).
//
// Configuration:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("channel active", "device_id", id)
//
// Pairing codes and device tokens must never be logged in clear; pass them
// through Mask first.
package logging
