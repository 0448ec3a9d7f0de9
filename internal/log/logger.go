// Package log holds the process-wide structured logger. Components derive
// child loggers from it instead of carrying their own handlers.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

var (
	level   slog.LevelVar
	current atomic.Pointer[slog.Logger]
)

// Setup logs JSON to stdout at the named level.
func Setup(lvl string) {
	SetupWith(lvl, "json", os.Stdout)
}

// SetupWith installs a handler writing to w in the given format ("text", or
// JSON for anything else). Each call replaces the previous handler, so a
// command can redirect logs after the first setup.
func SetupWith(lvl, format string, w io.Writer) {
	level.Set(ParseLevel(lvl))
	opts := &slog.HandlerOptions{Level: &level}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		h = slog.NewTextHandler(w, opts)
	}
	l := slog.New(h)
	current.Store(l)
	slog.SetDefault(l)
}

// ParseLevel maps debug, info, warn (or warning) and error to slog levels,
// case-insensitively. Anything else is info.
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
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

// Get returns the installed logger, setting up an info-level JSON logger on
// first use.
func Get() *slog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	Setup("info")
	return current.Load()
}

// WithComponent tags records with the subsystem that produced them.
func WithComponent(name string) *slog.Logger {
	return Get().With(slog.String("component", name))
}

// WithHook is the logger for a hook slot's default stub.
func WithHook(point string) *slog.Logger {
	return Get().With(slog.String("component", "hook"), slog.String("hook", point))
}
