// Package log configures the process-wide slog logger for the cascade
// binaries.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup installs the default logger. Level accepts slog's textual levels
// (debug, info, warn, error); anything unparseable falls back to info.
// Format selects "json" or "text" output, defaulting to text.
func Setup(level, format string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// WithModule returns a logger tagged with the component it belongs to.
// Every package takes its logger through this so log lines stay filterable
// by module.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
