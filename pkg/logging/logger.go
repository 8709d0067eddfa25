// Package logging configures the process-wide zerolog logger for the comment feed.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// ServiceName is attached to every log line written through Setup.
const ServiceName = "comment-scroll"

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
// Component loggers created afterwards with NewLogger inherit its output and fields.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(string(cfg.Level)))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: "15:04:05"}
	}

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", ServiceName).
		Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to a zerolog.Level. Unknown names map to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ValidLevel reports whether level names one of the supported levels.
func ValidLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Page loads started, applied, skipped or discarded
//   - Sentinel attach, detach and visibility events
//   - Rate limit budget updates while healthy
//
// Info: Normal operation events
//   - End of comments reached
//   - Metrics server startup/shutdown
//   - Scroll session start and summary
//
// Warn: Conditions that don't stop the feed
//   - Failed page loads (the feed shows the error message)
//   - Duplicate comments skipped
//   - Rate limit throttling
//   - Redis budget store unavailable (fallback to memory)
//
// Error: Conditions requiring attention
//   - Critical rate limit blocks
//   - Configuration errors
//
// Context Fields:
//   - component: feed, trigger, comments-client, rate-limit
//   - session: feed controller session ID
//   - page: page number of the request
//   - status_code: HTTP status code
//   - error_class: client, server, rate_limit, network, parse
//   - accumulated: comments held by the feed
//   - remaining: advertised request budget
