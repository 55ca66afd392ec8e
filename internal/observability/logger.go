package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the structured sink every component logger writes through.
type Logger struct {
	logger *slog.Logger
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	Output io.Writer
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// NewLogger builds a slog logger. Unknown levels fall back to info and a nil
// output writes to stdout.
func NewLogger(config LogConfig) *Logger {
	level, ok := logLevels[strings.ToLower(config.Level)]
	if !ok {
		level = slog.LevelInfo
	}
	output := config.Output
	if output == nil {
		output = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: level}
	if config.Format == "json" {
		return &Logger{logger: slog.New(slog.NewJSONHandler(output, opts))}
	}
	return &Logger{logger: slog.New(slog.NewTextHandler(output, opts))}
}

// WithContext returns a logger tagged with the session and run carried by ctx.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	var args []any
	if sessionID := SessionIDFromContext(ctx); sessionID != "" {
		args = append(args, "session_id", sessionID)
	}
	if runID := RunIDFromContext(ctx); runID != "" {
		args = append(args, "run_id", runID)
	}
	if len(args) == 0 {
		return l
	}
	return l.With(args...)
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{logger: l.logger.With(args...)}
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

type contextKey struct{ name string }

var (
	runIDKey     = contextKey{"run_id"}
	sessionIDKey = contextKey{"session_id"}
)

// ContextWithRunID tags ctx with the workflow run it belongs to.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

func RunIDFromContext(ctx context.Context) string {
	runID, _ := ctx.Value(runIDKey).(string)
	return runID
}

// ContextWithSessionID tags ctx with the display session it belongs to.
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

func SessionIDFromContext(ctx context.Context) string {
	sessionID, _ := ctx.Value(sessionIDKey).(string)
	return sessionID
}
