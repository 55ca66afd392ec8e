package replay

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	apperrors "redswarm/internal/errors"
	"redswarm/internal/logging"
	"redswarm/internal/observability"
	"redswarm/internal/sessionlog"
)

// Loader reads finalized sessions. *sessionlog.Store implements it.
type Loader interface {
	Load(ctx context.Context, sessionID string) (*sessionlog.Session, error)
}

// Outcome is what ReplaySession reports. Result is nil when Success is
// false. Err is set when a caller rejected the replay before loading.
type Outcome struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Kind    apperrors.Kind `json:"error_kind,omitempty"`
	Result  *Result        `json:"result,omitempty"`
	Err     error          `json:"-"`
}

type Engine struct {
	loader Loader
	tracer *observability.TracerProvider
	logger logging.Logger
}

type Option func(*Engine)

func WithTracer(tracer *observability.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tracer }
}

func WithLogger(logger logging.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrNop(logger) }
}

func NewEngine(loader Loader, opts ...Option) *Engine {
	e := &Engine{
		loader: loader,
		logger: logging.NewComponentLogger("ReplayEngine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReplaySession loads and replays a session. Failures are reported in the
// Outcome; it never panics or returns an error.
func (e *Engine) ReplaySession(ctx context.Context, sessionID string) (outcome Outcome) {
	ctx, span := e.tracer.StartSpan(observability.ContextWithSessionID(ctx, sessionID), observability.SpanReplay)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Replay of session %s panicked: %v", sessionID, r)
			outcome = Outcome{Message: fmt.Sprintf("Failed to replay session %s: %v", sessionID, r), Kind: apperrors.KindExecution}
		}
		span.SetAttributes(attribute.Bool(observability.AttrStatus, outcome.Success))
	}()

	if e.loader == nil {
		return Outcome{Message: "Session log store is not configured", Kind: apperrors.KindExecution}
	}
	session, err := e.loader.Load(ctx, sessionID)
	if err != nil {
		span.SetAttributes(observability.ErrorAttrs(err)...)
		if apperrors.KindOf(err) == apperrors.KindNotFound {
			return Outcome{Message: fmt.Sprintf("Session not found: %s", sessionID), Kind: apperrors.KindNotFound}
		}
		e.logger.Warn("Failed to load session %s: %v", sessionID, err)
		return Outcome{Message: fmt.Sprintf("Failed to load session %s: %v", sessionID, err), Kind: apperrors.KindOf(err)}
	}
	if session == nil || len(session.Events) == 0 {
		return Outcome{Message: fmt.Sprintf("Session %s has no events", sessionID), Kind: apperrors.KindValidation}
	}

	result := Replay(session)
	span.SetAttributes(attribute.Int(observability.AttrEventCount, result.EventCount))
	e.logger.Info("Replayed session %s: %d messages from %d events", sessionID, len(result.Messages), result.EventCount)
	return Outcome{
		Success: true,
		Message: fmt.Sprintf("Replay complete! Loaded %d messages from %d events.", len(result.Messages), result.EventCount),
		Result:  result,
	}
}
