package logging

import (
	"context"

	"redswarm/internal/observability"
)

// WithRunID returns a logger that tags log lines with a run id.
func WithRunID(logger Logger, runID string) Logger {
	if IsNil(logger) {
		return Nop()
	}
	if runID == "" {
		return logger
	}
	return &runIDLogger{logger: logger, runID: runID}
}

// FromContext returns a logger tagged with the run id found in ctx, if any.
func FromContext(ctx context.Context, logger Logger) Logger {
	return WithRunID(logger, observability.RunIDFromContext(ctx))
}

type runIDLogger struct {
	logger Logger
	runID  string
}

func (l *runIDLogger) Debug(format string, args ...any) {
	l.logger.Debug(prefixRunID(l.runID, format), args...)
}

func (l *runIDLogger) Info(format string, args ...any) {
	l.logger.Info(prefixRunID(l.runID, format), args...)
}

func (l *runIDLogger) Warn(format string, args ...any) {
	l.logger.Warn(prefixRunID(l.runID, format), args...)
}

func (l *runIDLogger) Error(format string, args ...any) {
	l.logger.Error(prefixRunID(l.runID, format), args...)
}

func prefixRunID(runID, format string) string {
	return "run=" + runID + " " + format
}
