// Package observability provides structured logging with redaction, cycle correlation and
// OpenTelemetry tracing for the agent.
package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LoggerConfig contains configuration for the logger.
type LoggerConfig struct {
	Level      slog.Level
	Output     io.Writer
	AddSource  bool
	JSONFormat bool
}

// Logger is the agent's slog logger. Every record goes through the redactor, so call sites
// log credentials-bearing values without special care.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a logger. A nil redactor disables masking.
func NewLogger(cfg LoggerConfig, redactor *Redactor) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.JSONFormat {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}
	if redactor != nil {
		handler = NewRedactingHandler(handler, redactor)
	}
	return &Logger{Logger: slog.New(handler)}
}

// ParseLevel converts a config level name into a slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// WithCycleID returns a logger tagged with the cycle ID carried by ctx, if any.
func (l *Logger) WithCycleID(ctx context.Context) *Logger {
	cycleID := CycleIDFromContext(ctx)
	if cycleID == "" {
		return l
	}
	return &Logger{Logger: l.Logger.With("cycle_id", cycleID)}
}

// Slog returns the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.Logger
}
