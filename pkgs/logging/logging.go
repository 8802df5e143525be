// Package logging builds the slog loggers used across the toolchain.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// EnvDebug enables debug output for every component when set.
const EnvDebug = "BEAST_DEBUG"

// New creates a text logger on stderr. The level is Debug when either
// EnvDebug or the component-specific variable is set, Info otherwise.
func New(componentEnv string) *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv(EnvDebug) != "" || (componentEnv != "" && os.Getenv(componentEnv) != "") {
		level = slog.LevelDebug
	}
	return NewWithWriter(os.Stderr, level)
}

// NewWithWriter creates a text logger writing to w at the given level.
func NewWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Remove timestamp for cleaner compiler output
			if a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	}))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
