// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/tscache/pkg/config"
)

// Component names used in the "component" field.
const (
	ComponentStore      = "tscache-store"
	ComponentConnection = "tscache-connection"
	ComponentBatch      = "tscache-batch"
	ComponentServer     = "tscache-server"
)

// Options holds logger settings.
type Options struct {
	// Level is the minimum level written
	Level zerolog.Level

	// Pretty switches from JSON lines to console output
	Pretty bool

	// Output defaults to os.Stderr
	Output io.Writer
}

// FromConfig converts the logging section of the configuration. Unknown
// levels fall back to info.
func FromConfig(cfg config.Logging) Options {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return Options{Level: level, Pretty: cfg.Pretty, Output: os.Stderr}
}

// Setup installs the global logger and returns it.
func Setup(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zerolog.SetGlobalLevel(opts.Level)
	zerolog.DurationFieldUnit = time.Millisecond

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// ParseLevel accepts debug, info, warn (or warning) and error, in any case.
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel, nil
	case "", "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// For returns a child of the global logger tagged with component.
func For(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Level guidelines:
//
// Debug: per-entry cache traffic (key, timestamp, ttl), probe failures
// Info: misses, backend state changes back to connected, startup/shutdown
// Warn: fetch read failures, corrupted entries, non-connectivity write errors
// Error: backend degraded (writes disabled), fatal configuration errors
//
// Context fields:
//   - key: series key
//   - timestamp: entry timestamp in epoch millis
//   - start, end: fetch window bounds
//   - ttl: series TTL
//   - from, to: backend state transition
//   - host: Redis address
