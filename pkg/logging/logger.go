// Package logging configures the zerolog global logger used by every
// screener component.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool

	// Service is attached to every entry as "service" when set.
	Service string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Service: "screener",
		Output:  os.Stderr,
	}
}

// ParseLevel validates a configured level name. "warning" is accepted as an
// alias of warn.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(zerologLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	lc := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		lc = lc.Str("service", cfg.Service)
	}
	logger := lc.Logger()

	log.Logger = logger
	return logger
}

// zerologLevel maps a LogLevel to zerolog. Unknown levels fall back to info.
func zerologLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger returns a child of the global logger tagged with component.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Page flow (page number, hits, effective target)
//   - Outgoing requests
//   - Retry backoff waits
//
// Info: Normal operation events
//   - Completed retrievals
//   - Requests that succeeded after retry
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Empty page before the target was reached
//   - Non-2xx responses
//   - Request budget exhausted (waiting for reset)
//   - Failed retrievals returned to the caller
//
// Error: Error conditions requiring attention
//   - Transport failures
//   - Service unavailability
//   - Configuration errors
//
// Context Fields:
//   - retrieval_id: UUID of one retrieval
//   - page: Page number (1-based)
//   - hits: Hits on the page
//   - total_count: Total reported by the service
//   - effective_target: Current retrieval bound
//   - records: Records accumulated so far
//   - status_code: HTTP status code
//   - error_class: Error classification (client, server, network, unexpected)
//   - duration: Request or retrieval duration
