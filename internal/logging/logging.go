// Package logging provides structured logging for the pipeline.
// It uses log/slog with either a JSON handler or a tinted console
// handler for interactive runs.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// NewLogger creates a structured logger. format is "json" or "console";
// "auto" picks console when stderr is a terminal.
// Supported levels: debug, info, warn, error.
func NewLogger(level, format string) *slog.Logger {
	lvl := parseLevel(level)

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "console":
		handler = consoleHandler(lvl)
	case "json":
		handler = jsonHandler(lvl)
	default:
		if isatty.IsTerminal(os.Stderr.Fd()) {
			handler = consoleHandler(lvl)
		} else {
			handler = jsonHandler(lvl)
		}
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func jsonHandler(lvl slog.Level) slog.Handler {
	return slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	})
}

func consoleHandler(lvl slog.Level) slog.Handler {
	return tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.TimeOnly,
	})
}

// WithComponent returns a logger with a component attribute.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// WithReference returns a logger with a reference_id attribute.
func WithReference(logger *slog.Logger, refID string) *slog.Logger {
	return logger.With("reference_id", refID)
}

// WithSubjob returns a logger with a subjob attribute.
func WithSubjob(logger *slog.Logger, subjob int) *slog.Logger {
	return logger.With("subjob", subjob)
}

// SanitizePath masks the home directory in a path for log output.
func SanitizePath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
