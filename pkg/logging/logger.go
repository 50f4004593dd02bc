// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
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

	// LevelDisabled turns logging off.
	LevelDisabled LogLevel = "disabled"
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

// ConfigFromEnv returns DefaultConfig overridden by FAST_PURGE_LOG_LEVEL and
// FAST_PURGE_LOG_PRETTY.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetEnvPrefix("FAST_PURGE")
	v.AutomaticEnv()
	v.SetDefault("log_level", string(cfg.Level))
	v.SetDefault("log_pretty", cfg.Pretty)

	cfg.Level = LogLevel(v.GetString("log_level"))
	cfg.Pretty = v.GetBool("log_pretty")
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
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
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
	case "disabled", "off":
		return zerolog.Disabled
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
//   - Chunking (object and chunk counts, body sizes)
//   - Purge accepted (purge_id, estimated completion)
//   - Cooldown waits
//
// Info: Normal operation events
//   - Purge complete
//   - Requests that succeeded after a retry
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts
//   - Retry-After cooldowns recorded
//   - Cooldown store errors (request proceeds)
//
// Error: Error conditions requiring attention
//   - Unexpected HTTP status from the API
//   - Retries exhausted
//   - Failed purges
//
// Context Fields:
//   - component: emitting component (fastpurge-client)
//   - endpoint: purge endpoint URL
//   - object_type, network: purge parameters
//   - chunk: chunk index within a purge
//   - status: HTTP status code
//   - error_class: client, auth, server, rate_limit, network
//   - attempt, backoff: retry progress
//   - purge_id: ID assigned by the API
