// Package logging configures slog for the server and carries request
// scoped loggers through contexts.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/sdk/log"
)

// Logger is a slog.Logger with request helpers.
type Logger struct {
	*slog.Logger
}

// Config selects the level, the format and the optional OTLP export.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	// LoggerProvider, when set, receives a copy of every record.
	LoggerProvider *log.LoggerProvider
	Output         io.Writer // stdout when nil
}

// NewLogger builds a Logger from cfg. Debug level adds source locations.
func NewLogger(cfg Config) *Logger {
	level := ParseLevel(cfg.Level)
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}

	var handler slog.Handler = slog.NewTextHandler(out, opts)
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	}
	if cfg.LoggerProvider != nil {
		handler = fanout{handler, otelslog.NewHandler("relgraph", otelslog.WithLoggerProvider(cfg.LoggerProvider))}
	}
	return &Logger{Logger: slog.New(handler)}
}

// ParseLevel maps a config level name to a slog level; unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(name) {
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

// WithRequestID returns a logger tagged with request_id.
func (l *Logger) WithRequestID(requestID string) *Logger {
	return l.WithFields(slog.String("request_id", requestID))
}

// WithFields returns a logger carrying the given attributes.
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{Logger: l.With(fields...)}
}
