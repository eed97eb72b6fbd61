// Package observability builds the process logger and the optional New Relic
// application from configuration.
package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/akave-ai/logserver/internal/config"
)

// NewLogger returns a zerolog logger writing to stderr. Pretty output uses
// the console writer; otherwise one JSON object is written per event.
func NewLogger(cfg *config.ObservabilityConfig) zerolog.Logger {
	return newLogger(os.Stderr, cfg)
}

func newLogger(out io.Writer, cfg *config.ObservabilityConfig) zerolog.Logger {
	if cfg == nil {
		cfg = config.DefaultObservabilityConfig()
	}
	w := out
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	ctx := zerolog.New(w).Level(cfg.Level()).With().Timestamp()
	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		ctx = ctx.Str("env", cfg.Environment)
	}
	return ctx.Logger()
}
