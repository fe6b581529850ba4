// Package logging configures the process-wide structured logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup creates a slog.Logger writing to w (os.Stderr when nil). format is
// "text" or "json" (anything else means json). Every record carries the
// service name.
func Setup(service, format, level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.EqualFold(format, "text") {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h.WithAttrs([]slog.Attr{slog.String("service", service)}))
}

// SetDefault installs a Setup logger as slog's default and returns it.
func SetDefault(service, format, level string) *slog.Logger {
	l := Setup(service, format, level, nil)
	slog.SetDefault(l)
	return l
}

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
