package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/quickbars-hub/internal/infrastructure/config"
)

// serviceName is attached to every log entry.
const serviceName = "quickbars-hub"

// maskVisible is the number of leading characters Mask keeps.
const maskVisible = 2

// Logger wraps slog.Logger with hub-wide default fields.
//
// All methods are safe for concurrent use from multiple goroutines.
type Logger struct {
	*slog.Logger
}

// New creates a Logger from the logging section of the configuration.
//
// The format is JSON unless "text" is requested, output goes to stdout unless
// "stderr" is requested, and every entry carries the service name and version.
func New(cfg config.LoggingConfig, version string) *Logger {
	return newWithWriter(cfg, version, outputFor(cfg.Output))
}

func newWithWriter(cfg config.LoggingConfig, version string, output io.Writer) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

func outputFor(name string) io.Writer {
	if strings.ToLower(name) == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}

// parseLevel converts a string log level to slog.Level.
// Unrecognised levels fall back to info.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a new Logger with additional default attributes.
//
// Example:
//
//	chLogger := logger.With("component", "channel", "device_id", id)
//	chLogger.Info("connected") // Includes component and device_id
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default creates a JSON logger at info level for use before configuration is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}

// Mask hides all but the first couple of characters of a secret so pairing
// codes, session ids and tokens can be correlated in logs without being leaked.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= maskVisible {
		return strings.Repeat("*", len(secret))
	}
	return secret[:maskVisible] + strings.Repeat("*", len(secret)-maskVisible)
}
