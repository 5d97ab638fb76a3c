// Package logging builds the process-wide *slog.Logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects level (debug, info, warn, error), format (json, text) and
// output (stdout, stderr). Writer, when set, overrides Output.
type Config struct {
	Level  string
	Format string
	Output string
	Writer io.Writer
}

// New returns a logger carrying service and version attributes. Unknown
// values fall back to info, json and stdout.
func New(cfg Config, version string) *slog.Logger {
	output := cfg.Writer
	if output == nil {
		switch strings.ToLower(cfg.Output) {
		case "stderr":
			output = os.Stderr
		default:
			output = os.Stdout
		}
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "siteauth"),
		slog.String("version", version),
	})
	return slog.New(handler)
}

// ParseLevel maps a level name to slog.Level; unrecognised names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
