// Package logging builds the process-wide zerolog.Logger. Modeled on the
// teacher's internal/shared/monitoring/logger.go.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Format selects the log sink's rendering.
type Format string

const (
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
)

// Config configures the root logger.
type Config struct {
	Level  string // debug|info|warn|error|fatal
	Format Format
}

// New builds the root logger. Component loggers are derived from it with
// .With().Str("component", name).Logger() at each package's constructor.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer = os.Stdout
	if cfg.Format == FormatPretty {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(output).With().
		Timestamp().
		Str("service", "filament-gateway").
		Logger()
}
