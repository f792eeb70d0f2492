// Package logging configures the zerolog logger shared by the post
// assembler, the Notion client and the HTTP service.
package logging

import (
	"io"
	"os"
	"strconv"
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

// ConfigFromEnv reads LOG_LEVEL and LOG_PRETTY through getenv (os.Getenv
// when nil). Unset or unparsable values keep the defaults.
func ConfigFromEnv(getenv func(string) string) Config {
	if getenv == nil {
		getenv = os.Getenv
	}
	cfg := DefaultConfig()
	if level := strings.TrimSpace(getenv("LOG_LEVEL")); level != "" {
		cfg.Level = LogLevel(strings.ToLower(level))
	}
	if pretty, err := strconv.ParseBool(getenv("LOG_PRETTY")); err == nil {
		cfg.Pretty = pretty
	}
	return cfg
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Notion requests (endpoint, status)
//   - Batch progress, skipped child pages
//   - Cache operations (hit/miss, key, TTL)
//
// Info: Normal operation events
//   - Completed assembly runs (post count, duration)
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Overloaded retries (429)
//   - Skipped batches
//   - Invalid root page graphs
//   - Cache errors (fallback to assembling)
//
// Error: Error conditions requiring attention
//   - Exhausted retries
//   - Configuration errors
//
// Context Fields:
//   - component: emitting package
//   - label: throttled operation, e.g. getPage or getBlocks[2/3]
//   - attempt, delay: retry progress
//   - batch, batch_size: batch progress
//   - root_page_id, page_id: Notion ids
//   - stage: pipeline stage an assembly ended in
//   - error_class: overload or other
