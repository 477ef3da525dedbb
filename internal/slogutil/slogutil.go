package slogutil

import (
	"io"
	"log/slog"
	"strings"
)

// levelSilent sits above every standard level.
const levelSilent = slog.Level(100)

// NewLogger creates a logger using Handler.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewDiscardLogger creates a logger that drops everything. Used by tests.
func NewDiscardLogger() *slog.Logger {
	return slog.New(NewHandler(io.Discard, &slog.HandlerOptions{Level: levelSilent}))
}

// LevelFromString converts debug|info|warn|error (case-insensitive) to a level.
// Unknown strings map to info.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "silent", "off":
		return levelSilent
	default:
		return slog.LevelInfo
	}
}

// LevelFromVerbosity converts -v counts to a level:
// quiet silences everything, 0 is warn, 1 is info, 2+ is debug.
func LevelFromVerbosity(verbosity int, quiet bool) slog.Level {
	if quiet {
		return levelSilent
	}
	switch verbosity {
	case 0:
		return slog.LevelWarn
	case 1:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
