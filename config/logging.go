package config

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds a logger writing to w. Format "json" writes one JSON
// object per event; anything else uses a human-readable console writer.
// An unparsable level falls back to info.
func NewLogger(lc LoggingConfig, w io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(lc.Level)
	if err != nil || lc.Level == "" {
		lvl = zerolog.InfoLevel
	}

	out := w
	if lc.Format != "json" {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Logger()
}
