// Package logging configures colored structured logging with tint.
//
// Environment variables:
//
//	LOG_LEVEL: debug, info, warn, error (default: info)
//	LOG_FORMAT: text (default, colored) or json
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// Setup configures the default logger from LOG_LEVEL and LOG_FORMAT.
func Setup() {
	slog.SetDefault(New(os.Stderr, levelFromEnv(), os.Getenv("LOG_FORMAT")))
}

// New builds a logger writing to w. format "json" selects the JSON handler,
// anything else the colored tint handler.
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		AddSource:  level == slog.LevelDebug,
	}))
}

func levelFromEnv() slog.Level {
	return ParseLevel(os.Getenv("LOG_LEVEL"))
}

// ParseLevel maps a level name to a slog.Level, defaulting to INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
