package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kadirpekel/crucible/config"
)

// newLogger builds the ambient slog.Logger every component logs through,
// per cfg's level/format/output — the same three-axis shape the teacher's
// LoggingConfig validates, generalized here into a concrete handler
// instead of delegating to the teacher's own pkg/logger package (which
// carries hector-specific formatting this module has no use for).
func newLogger(cfg config.LoggingConfig) (*slog.Logger, func(), error) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer
	cleanup := func() {}
	switch cfg.Output {
	case "stderr":
		out = os.Stderr
	case "file":
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", cfg.File, err)
		}
		out = f
		cleanup = func() { f.Close() }
	default:
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), cleanup, nil
}
