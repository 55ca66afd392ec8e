// Package executor adapts the execution graph's update stream into ordered,
// de-duplicated swarm events.
package executor

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"redswarm/internal/agents"
	"redswarm/internal/graph"
	"redswarm/internal/logging"
	"redswarm/internal/messages"
	"redswarm/internal/metrics"
	"redswarm/internal/observability"
)

// failureMarker prefixes tool output reporting a failed tool invocation.
const failureMarker = "[-]"

const defaultEventBuffer = 16

// Adapter runs user turns against a graph. It holds no per-run state and is
// safe for concurrent use.
type Adapter struct {
	graph   graph.Graph
	tracker *metrics.Tracker
	metrics *observability.MetricsCollector
	tracer  *observability.TracerProvider
	logger  logging.Logger
	now     func() time.Time
	buffer  int
}

// Option configures an Adapter.
type Option func(*Adapter)

func WithCostTracker(tracker *metrics.Tracker) Option {
	return func(a *Adapter) {
		if tracker != nil {
			a.tracker = tracker
		}
	}
}

func WithMetrics(collector *observability.MetricsCollector) Option {
	return func(a *Adapter) { a.metrics = collector }
}

func WithTracer(tracer *observability.TracerProvider) Option {
	return func(a *Adapter) { a.tracer = tracer }
}

func WithLogger(logger logging.Logger) Option {
	return func(a *Adapter) { a.logger = logging.OrNop(logger) }
}

func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

// WithEventBuffer sets how many events may be queued ahead of the consumer.
func WithEventBuffer(size int) Option {
	return func(a *Adapter) {
		if size >= 0 {
			a.buffer = size
		}
	}
}

func New(g graph.Graph, opts ...Option) *Adapter {
	a := &Adapter{
		graph:   g,
		tracker: metrics.NewTracker(),
		logger:  logging.NewComponentLogger("ExecutionAdapter"),
		now:     time.Now,
		buffer:  defaultEventBuffer,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Tracker exposes the cost tracker runs accumulate into.
func (a *Adapter) Tracker() *metrics.Tracker {
	return a.tracker
}

// Run is one user turn in flight. Consumers read Events until it is closed,
// or call Close to stop observing early.
type Run struct {
	ID string

	events   chan Event
	stop     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
	err      error
}

// Events yields the run's events. The channel is closed after the terminal
// event, or early once Close is called.
func (r *Run) Events() <-chan Event {
	return r.events
}

// Done is closed once the underlying stream has been released.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Close stops the run and waits until the graph stream is released. It is
// safe to call more than once.
func (r *Run) Close() {
	r.stopOnce.Do(func() {
		close(r.stop)
		r.cancel()
	})
	<-r.done
}

// Err reports how the run ended once Done is closed: nil on completion,
// context.Canceled (possibly wrapped) on cancellation, otherwise the stream
// failure.
func (r *Run) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// send delivers event unless the consumer stopped observing.
func (r *Run) send(event Event) bool {
	select {
	case r.events <- event:
		return true
	case <-r.stop:
		return false
	}
}

// Execute starts a fresh run for userInput. Each run has its own dedupe
// scope and cost aggregate.
func (a *Adapter) Execute(ctx context.Context, userInput string, thread graph.ThreadConfig) *Run {
	runID := observability.RunIDFromContext(ctx)
	if runID == "" {
		runID = uuid.NewString()
		ctx = observability.ContextWithRunID(ctx, runID)
	}
	ctx, cancel := context.WithCancel(ctx)
	run := &Run{
		ID:     runID,
		events: make(chan Event, a.buffer),
		stop:   make(chan struct{}),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go a.stream(ctx, run, userInput, thread)
	return run
}

func (a *Adapter) stream(ctx context.Context, run *Run, userInput string, thread graph.ThreadConfig) {
	defer close(run.done)
	defer close(run.events)
	defer run.cancel()

	logger := logging.WithRunID(a.logger, run.ID)
	ctx, span := a.tracer.StartSpan(ctx, observability.SpanGraphStream,
		attribute.String(observability.AttrThreadID, thread.ThreadID))
	defer span.End()

	a.tracker.StartRun(run.ID)
	step := 0

	fail := func(err error) {
		a.tracker.EndRun(run.ID)
		cancelled := errors.Is(err, context.Canceled)
		if cancelled {
			logger.Info("Run cancelled after %d steps", step)
		} else {
			logger.Error("Run failed after %d steps: %v", step, err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(observability.ErrorAttrs(err)...)
		run.err = err
		run.send(Event{
			Type:      EventError,
			Error:     err.Error(),
			Cancelled: cancelled,
			StepCount: step,
			Timestamp: a.now(),
		})
	}

	stream, err := a.graph.Stream(ctx, graph.RawMessage{Type: graph.TypeHuman, Content: userInput}, thread)
	if err != nil {
		fail(err)
		return
	}
	defer func() {
		if closeErr := stream.Close(); closeErr != nil {
			logger.Warn("Failed to close update stream: %v", closeErr)
		}
	}()

	classifier := messages.NewClassifier(a.now)
	for {
		if err := ctx.Err(); err != nil {
			fail(err)
			return
		}
		update, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fail(err)
			return
		}
		step++

		agentName := agents.FromNamespace(update.Namespace)
		for _, node := range update.Nodes {
			raw, ok := node.Latest()
			if !ok {
				continue
			}
			msg, ok := classifier.Ingest(raw, agentName)
			if !ok {
				continue
			}
			a.observe(ctx, run.ID, msg)
			logger.Debug("Emitting %s message from %s (node=%s, step=%d)", msg.Kind(), agentName, node.Node, step)
			if !run.send(messageEvent(msg, agentName, update.Namespace, step, a.now())) {
				run.err = context.Canceled
				a.tracker.EndRun(run.ID)
				return
			}
		}
	}

	if err := ctx.Err(); err != nil {
		fail(err)
		return
	}

	final := a.tracker.EndRun(run.ID)
	span.SetAttributes(attribute.Int(observability.AttrStepCount, step))
	logger.Info("Run completed: steps=%d, calls=%d, cost=$%.6f", step, final.Calls, final.TotalCost)
	run.send(Event{
		Type:      EventWorkflowComplete,
		StepCount: step,
		Metrics:   &final,
		Timestamp: a.now(),
	})
}

// observe feeds usage and tool outcomes into the cost tracker and metrics.
func (a *Adapter) observe(ctx context.Context, runID string, msg messages.Message) {
	a.metrics.RecordMessage(ctx, string(msg.Kind()))
	switch m := msg.(type) {
	case messages.AgentMessage:
		if m.Usage == nil {
			return
		}
		record := a.tracker.Record(runID, m.Model, m.Usage.InputTokens, m.Usage.OutputTokens)
		a.metrics.RecordLLMUsage(ctx, m.Model, record.InputTokens, record.OutputTokens, record.TotalCost)
	case messages.ToolMessage:
		status := "success"
		if strings.HasPrefix(strings.TrimSpace(m.Content), failureMarker) {
			status = "failed"
		}
		a.metrics.RecordToolExecution(ctx, m.ToolName, status)
	}
}
