// Package workflow drives one session's runs: it consumes adapter events,
// tracks which agent holds the turn, bounds retained history and forwards
// displayable output to callbacks.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"redswarm/internal/agents"
	apperrors "redswarm/internal/errors"
	"redswarm/internal/executor"
	"redswarm/internal/graph"
	"redswarm/internal/logging"
	"redswarm/internal/messages"
	"redswarm/internal/observability"
	"redswarm/internal/sessionlog"
	"redswarm/internal/terminal"
)

// User-facing messages.
const (
	MsgAlreadyRunning   = "Another workflow is already running. Please wait."
	MsgEmptyInput       = "Please enter a message."
	MsgHistoryCorrupted = "Chat history corrupted. Please start a new chat to continue."
	MsgNewChatAdvice    = "You've had %d+ conversation turns. For optimal performance, consider starting a new chat. This prevents memory bloat and keeps responses fast."
)

// Executor starts adapter runs. *executor.Adapter implements it.
type Executor interface {
	Execute(ctx context.Context, userInput string, thread graph.ThreadConfig) *executor.Run
}

// Callbacks receive a run's output synchronously and in event order. Nil
// slots are skipped.
type Callbacks struct {
	OnMessage  func(messages.Message)
	OnTerminal func([]terminal.Line)
	OnComplete func(executor.Event)
	OnError    func(message string)
	OnNotice   func(message string)
}

// AgentStatus is the turn-taking snapshot.
type AgentStatus struct {
	Active    string   `json:"active_agent"`
	Completed []string `json:"completed_agents"`
}

// Loop owns the mutable state of one session. At most one run is in flight
// at a time.
type Loop struct {
	exec         Executor
	checkpointer graph.Checkpointer
	projector    *terminal.Projector
	recorder     *sessionlog.Recorder
	metrics      *observability.MetricsCollector
	tracer       *observability.TracerProvider
	logger       logging.Logger
	cfg          Config
	now          func() time.Time

	mu              sync.Mutex
	thread          graph.ThreadConfig
	running         bool
	current         *Handle
	active          string
	completed       []string
	structured      []messages.Message
	history         []executor.Event
	totalTurns      int
	turnsSinceReset int
}

type Option func(*Loop)

func WithConfig(cfg Config) Option {
	return func(l *Loop) { l.cfg = cfg.withDefaults() }
}

// WithCheckpointer enables periodic checkpoint clearing.
func WithCheckpointer(checkpointer graph.Checkpointer) Option {
	return func(l *Loop) { l.checkpointer = checkpointer }
}

func WithProjector(projector *terminal.Projector) Option {
	return func(l *Loop) {
		if projector != nil {
			l.projector = projector
		}
	}
}

func WithRecorder(recorder *sessionlog.Recorder) Option {
	return func(l *Loop) { l.recorder = recorder }
}

func WithMetrics(collector *observability.MetricsCollector) Option {
	return func(l *Loop) { l.metrics = collector }
}

func WithTracer(tracer *observability.TracerProvider) Option {
	return func(l *Loop) { l.tracer = tracer }
}

func WithLogger(logger logging.Logger) Option {
	return func(l *Loop) { l.logger = logging.OrNop(logger) }
}

func WithClock(now func() time.Time) Option {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
	}
}

func New(exec Executor, thread graph.ThreadConfig, opts ...Option) *Loop {
	l := &Loop{
		exec:      exec,
		thread:    thread,
		projector: terminal.NewProjector(),
		logger:    logging.NewComponentLogger("WorkflowLoop"),
		cfg:       DefaultConfig(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start validates input and launches a run. It fails with a validation
// error when input is blank or another run is in flight; in that case no
// state changes.
func (l *Loop) Start(ctx context.Context, input string, cb Callbacks) (*Handle, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, apperrors.ValidationError(MsgEmptyInput)
	}

	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return nil, apperrors.ConflictError(MsgAlreadyRunning)
	}
	l.running = true
	handle := newHandle(uuid.NewString())
	l.current = handle

	clearCheckpoint := l.turnsSinceReset >= l.cfg.CheckpointResetTurns
	if clearCheckpoint {
		l.turnsSinceReset = 0
	}
	warn := l.totalTurns >= l.cfg.NewChatWarningTurns
	l.totalTurns++
	l.turnsSinceReset++
	thread := l.thread

	userMsg := messages.UserMessage{
		ID:        messages.StableID("", messages.UserAgentName, input),
		Content:   input,
		Timestamp: l.now(),
	}
	l.appendMessageLocked(userMsg)
	l.mu.Unlock()

	if l.recorder != nil {
		l.recorder.LogUserInput(input)
	}
	if warn && cb.OnNotice != nil {
		cb.OnNotice(fmt.Sprintf(MsgNewChatAdvice, l.cfg.NewChatWarningTurns))
	}
	if cb.OnMessage != nil {
		cb.OnMessage(userMsg)
	}

	ctx = observability.ContextWithRunID(ctx, handle.ID)
	go l.run(ctx, handle, input, thread, clearCheckpoint, cb)
	return handle, nil
}

// Run starts a run and waits for it.
func (l *Loop) Run(ctx context.Context, input string, cb Callbacks) (RunResult, error) {
	handle, err := l.Start(ctx, input, cb)
	if err != nil {
		return RunResult{}, err
	}
	return handle.Wait(), nil
}

// Stop stops the in-flight run, if any, and reports whether there was one.
func (l *Loop) Stop() bool {
	l.mu.Lock()
	handle := l.current
	l.mu.Unlock()
	if handle == nil {
		return false
	}
	handle.Stop()
	return true
}

func (l *Loop) run(ctx context.Context, h *Handle, input string, thread graph.ThreadConfig, clearCheckpoint bool, cb Callbacks) {
	started := l.now()
	logger := logging.WithRunID(l.logger, h.ID)
	ctx, span := l.tracer.StartSpan(ctx, observability.SpanWorkflowRun,
		attribute.String(observability.AttrThreadID, thread.ThreadID))
	l.metrics.IncrementActiveRuns(ctx)

	steps := 0
	defer func() {
		status := runStatus(h.result)
		span.SetAttributes(observability.RunAttrs(status, h.result.EventCount, steps)...)
		if status == observability.RunStatusError || status == observability.RunStatusIdleTimeout {
			span.SetStatus(codes.Error, h.result.ErrorMessage)
		}
		span.End()
		l.metrics.DecrementActiveRuns(ctx)
		l.metrics.RecordRun(ctx, status, l.now().Sub(started))
		l.finish(ctx, h, logger)
	}()

	if clearCheckpoint {
		l.clearCheckpoint(ctx, thread, logger)
	}

	logger.Info("Workflow started on thread %s", thread.ThreadID)
	run := l.exec.Execute(ctx, input, thread)
	defer run.Close()

	seen := messages.NewSeen()
	seen.Observe(messages.StableID("", messages.UserAgentName, input))

	idle := time.NewTimer(l.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-h.stop:
			l.cancelled(h, logger)
			return
		case <-idle.C:
			err := apperrors.IdleTimeoutError(idleMessage(l.cfg.IdleTimeout))
			h.result.ErrorMessage = err.Error()
			h.result.ErrorKind = apperrors.KindOf(err)
			logger.Error("Workflow idle for %s, aborting", l.cfg.IdleTimeout)
			if cb.OnError != nil {
				cb.OnError(h.result.ErrorMessage)
			}
			return
		case event, ok := <-run.Events():
			if !ok {
				l.streamEnded(h, run, logger)
				return
			}
			if h.stopped() {
				l.cancelled(h, logger)
				return
			}
			idle.Reset(l.cfg.IdleTimeout)
			h.result.EventCount++
			steps = event.StepCount
			l.recordEvent(event)

			switch event.Type {
			case executor.EventMessage:
				l.handleMessage(event, seen, h, cb)
			case executor.EventWorkflowComplete:
				h.result.Success = true
				h.result.Metrics = event.Metrics
				logger.Info("Workflow completed after %d events", h.result.EventCount)
				if cb.OnComplete != nil {
					cb.OnComplete(event)
				}
				return
			case executor.EventError:
				if event.Cancelled {
					l.cancelled(h, logger)
					return
				}
				err := translateError(event.Error)
				h.result.ErrorMessage = err.Error()
				h.result.ErrorKind = apperrors.KindOf(err)
				logger.Error("Workflow failed: %s", event.Error)
				if cb.OnError != nil {
					cb.OnError(h.result.ErrorMessage)
				}
				return
			}
		}
	}
}

// finish releases the run. It always clears the running flag.
func (l *Loop) finish(ctx context.Context, h *Handle, logger logging.Logger) {
	if l.recorder != nil {
		if _, err := l.recorder.Save(ctx); err != nil {
			logger.Warn("Failed to save session log: %v", err)
		}
	}
	l.mu.Lock()
	l.running = false
	if l.current == h {
		l.current = nil
	}
	l.mu.Unlock()
	close(h.done)
}

func (l *Loop) cancelled(h *Handle, logger logging.Logger) {
	h.result.Success = true
	h.result.Cancelled = true
	h.result.ErrorKind = apperrors.KindCancelled
	logger.Info("Workflow stopped after %d events", h.result.EventCount)
}

// streamEnded handles an event channel closed without a terminal event.
func (l *Loop) streamEnded(h *Handle, run *executor.Run, logger logging.Logger) {
	<-run.Done()
	err := run.Err()
	switch {
	case err == nil:
		h.result.Success = true
	case errors.Is(err, context.Canceled):
		l.cancelled(h, logger)
	default:
		translated := translateError(err.Error())
		h.result.ErrorMessage = translated.Error()
		h.result.ErrorKind = apperrors.KindOf(translated)
	}
}

func (l *Loop) clearCheckpoint(ctx context.Context, thread graph.ThreadConfig, logger logging.Logger) {
	if l.checkpointer == nil || thread.ThreadID == "" {
		return
	}
	if err := l.checkpointer.ClearThread(ctx, thread.ThreadID); err != nil {
		logger.Warn("Failed to clear checkpoint for thread %s: %v", thread.ThreadID, err)
		return
	}
	l.metrics.RecordCheckpointReset(ctx)
	logger.Info("Cleared checkpoint for thread %s after %d turns", thread.ThreadID, l.cfg.CheckpointResetTurns)
}

func (l *Loop) handleMessage(event executor.Event, seen *messages.Seen, h *Handle, cb Callbacks) {
	msg := event.Message
	if msg == nil {
		return
	}
	if !seen.Observe(msg.Identifier()) {
		return
	}
	if user, ok := msg.(messages.UserMessage); ok {
		if !seen.Observe(messages.StableID("", messages.UserAgentName, user.Content)) {
			return
		}
	}

	agentName := event.AgentName
	if agentName == "" {
		agentName = agents.UnknownName
	}
	h.result.AgentActivity[agentName]++

	l.mu.Lock()
	l.appendMessageLocked(msg)
	if _, ok := msg.(messages.AgentMessage); ok {
		l.transitionLocked(agents.ActivityName(agentName))
	}
	l.mu.Unlock()

	l.logMessage(msg)
	if cb.OnMessage != nil {
		cb.OnMessage(msg)
	}
	if tool, ok := msg.(messages.ToolMessage); ok {
		if lines := l.projector.Project(tool); len(lines) > 0 && cb.OnTerminal != nil {
			cb.OnTerminal(lines)
		}
	}
}

// transitionLocked applies the turn-taking rule: a new agent completes the
// previous one.
func (l *Loop) transitionLocked(next string) {
	if next == "" || next == l.active {
		return
	}
	if l.active != "" && !contains(l.completed, l.active) {
		l.completed = append(l.completed, l.active)
	}
	l.active = next
}

func (l *Loop) logMessage(msg messages.Message) {
	if l.recorder == nil {
		return
	}
	switch m := msg.(type) {
	case messages.AgentMessage:
		l.recorder.LogAgentResponse(m.AgentName, m.Content, m.ToolCalls)
		if l.cfg.LogToolCommands {
			for _, call := range m.ToolCalls {
				if messages.IsHandoff(call.Name) {
					continue
				}
				l.recorder.LogToolCommand(call.Name, m.AgentName, messages.RenderToolCall(call))
			}
		}
	case messages.ToolMessage:
		l.recorder.LogToolOutput(m.ToolName, m.AgentName, m.Content)
	}
}

func (l *Loop) appendMessageLocked(msg messages.Message) {
	l.structured = append(l.structured, msg)
	if over := len(l.structured) - l.cfg.MaxStructuredMessages; over > 0 {
		l.structured = append([]messages.Message(nil), l.structured[over:]...)
	}
}

func (l *Loop) recordEvent(event executor.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = append(l.history, event)
	if over := len(l.history) - l.cfg.MaxEventHistory; over > 0 {
		l.history = append([]executor.Event(nil), l.history[over:]...)
	}
}

// Running reports whether a run is in flight.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Loop) Status() AgentStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return AgentStatus{Active: l.active, Completed: append([]string{}, l.completed...)}
}

// Messages returns the retained displayed messages, oldest first.
func (l *Loop) Messages() []messages.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]messages.Message(nil), l.structured...)
}

// EventHistory returns the retained raw events, oldest first.
func (l *Loop) EventHistory() []executor.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]executor.Event(nil), l.history...)
}

func (l *Loop) Terminal() []terminal.Line {
	return l.projector.Lines()
}

func (l *Loop) Thread() graph.ThreadConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.thread
}

// Reset starts a new conversation on thread: retained history, agent state,
// turn counters and the terminal buffer are cleared. It fails while a run
// is in flight.
func (l *Loop) Reset(thread graph.ThreadConfig) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return apperrors.ConflictError(MsgAlreadyRunning)
	}
	l.thread = thread
	l.active = ""
	l.completed = nil
	l.structured = nil
	l.history = nil
	l.totalTurns = 0
	l.turnsSinceReset = 0
	l.projector.Clear()
	return nil
}

// translateError maps a graph failure to what the user is shown.
func translateError(cause string) error {
	if apperrors.IsHistoryCorruption(cause) {
		return apperrors.HistoryCorruptedError(MsgHistoryCorrupted, errors.New(cause))
	}
	return fmt.Errorf("Workflow execution error: %s", cause)
}

func idleMessage(window time.Duration) string {
	return fmt.Sprintf("Workflow timeout: No activity for %s. The agent may be stuck on a slow tool or infinite loop. Try starting a new chat and using faster tools.", formatWindow(window))
}

func formatWindow(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}

func runStatus(result RunResult) string {
	switch {
	case result.Cancelled:
		return observability.RunStatusCancelled
	case result.ErrorKind == apperrors.KindIdleTimeout:
		return observability.RunStatusIdleTimeout
	case result.Success:
		return observability.RunStatusCompleted
	default:
		return observability.RunStatusError
	}
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
