// ABOUTME: Structured logging setup over zerolog
// ABOUTME: One process logger with level, console or JSON output, and the service name on every entry
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const ServiceName = "tradedesk"

// Format selects the log encoding.
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
)

type Config struct {
	Level  string
	Format Format
	// Output defaults to os.Stderr so stdout stays free for command output.
	Output io.Writer
}

// New builds the process logger.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format != FormatJSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", ServiceName).
		Logger()
}

// ParseLevel maps a level name to zerolog, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
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
