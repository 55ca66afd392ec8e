package app

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "redswarm/internal/errors"
	"redswarm/internal/graph"
	"redswarm/internal/logging"
	"redswarm/internal/messages"
	"redswarm/internal/observability"
	"redswarm/internal/replay"
	"redswarm/internal/sessionlog"
	"redswarm/internal/terminal"
	"redswarm/internal/workflow"
)

// SessionInfo describes one live session.
type SessionInfo struct {
	ID           string               `json:"id"`
	UserID       string               `json:"user_id"`
	ThreadID     string               `json:"thread_id"`
	LogSessionID string               `json:"log_session_id,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	Running      bool                 `json:"running"`
	RunID        string               `json:"run_id,omitempty"`
	Status       workflow.AgentStatus `json:"status"`
	MessageCount int                  `json:"message_count"`
}

type session struct {
	id        string
	userID    string
	createdAt time.Time
	loop      *workflow.Loop
	recorder  *sessionlog.Recorder

	mu     sync.Mutex
	handle *workflow.Handle
}

func (s *session) currentHandle() *workflow.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle
}

// ServerCoordinator owns one workflow loop per display session and routes
// their output to the broadcaster.
type ServerCoordinator struct {
	exec         workflow.Executor
	checkpointer graph.Checkpointer
	store        *sessionlog.Store
	replayer     *replay.Engine
	broadcaster  *EventBroadcaster
	metrics      *observability.MetricsCollector
	tracer       *observability.TracerProvider
	logger       logging.Logger
	now          func() time.Time

	workflowCfg    workflow.Config
	terminalLines  int
	recursionLimit int
	model          string

	// runs outlive the request that started them
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*session
}

type CoordinatorOption func(*ServerCoordinator)

// WithCheckpointer enables checkpoint maintenance and new-chat clearing.
func WithCheckpointer(checkpointer graph.Checkpointer) CoordinatorOption {
	return func(c *ServerCoordinator) { c.checkpointer = checkpointer }
}

func WithWorkflowConfig(cfg workflow.Config) CoordinatorOption {
	return func(c *ServerCoordinator) { c.workflowCfg = cfg }
}

func WithTerminalMaxLines(n int) CoordinatorOption {
	return func(c *ServerCoordinator) { c.terminalLines = n }
}

func WithRecursionLimit(limit int) CoordinatorOption {
	return func(c *ServerCoordinator) { c.recursionLimit = limit }
}

// WithModel sets the model name recorded in session logs.
func WithModel(model string) CoordinatorOption {
	return func(c *ServerCoordinator) { c.model = model }
}

func WithObservability(obs *observability.Observability) CoordinatorOption {
	return func(c *ServerCoordinator) {
		if obs == nil {
			return
		}
		c.metrics = obs.Metrics
		c.tracer = obs.Tracer
	}
}

func WithCoordinatorLogger(logger logging.Logger) CoordinatorOption {
	return func(c *ServerCoordinator) { c.logger = logging.OrNop(logger) }
}

func WithCoordinatorClock(now func() time.Time) CoordinatorOption {
	return func(c *ServerCoordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func NewServerCoordinator(exec workflow.Executor, store *sessionlog.Store, broadcaster *EventBroadcaster, opts ...CoordinatorOption) *ServerCoordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &ServerCoordinator{
		exec:           exec,
		store:          store,
		broadcaster:    broadcaster,
		logger:         logging.NewComponentLogger("ServerCoordinator"),
		now:            time.Now,
		workflowCfg:    workflow.DefaultConfig(),
		terminalLines:  terminal.DefaultMaxLines,
		recursionLimit: graph.DefaultRecursionLimit,
		ctx:            ctx,
		cancel:         cancel,
		sessions:       make(map[string]*session),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.broadcaster == nil {
		c.broadcaster = NewEventBroadcaster()
	}
	var loader replay.Loader
	if store != nil {
		loader = store
	}
	c.replayer = replay.NewEngine(loader, replay.WithTracer(c.tracer))
	return c
}

func (c *ServerCoordinator) Broadcaster() *EventBroadcaster {
	return c.broadcaster
}

// CreateSession registers a display session for userID, generating one
// when blank.
func (c *ServerCoordinator) CreateSession(userID string) SessionInfo {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = uuid.NewString()[:8]
	}
	id := uuid.NewString()
	thread := graph.NewThreadConfig(userID, "").WithRecursionLimit(c.recursionLimit)

	recorder := sessionlog.NewRecorder(c.store, sessionlog.WithRecorderClock(c.now))
	recorder.StartSession(c.model)

	loop := workflow.New(c.exec, thread,
		workflow.WithConfig(c.workflowCfg),
		workflow.WithCheckpointer(c.checkpointer),
		workflow.WithProjector(terminal.NewProjector(terminal.WithMaxLines(c.terminalLines), terminal.WithClock(c.now))),
		workflow.WithRecorder(recorder),
		workflow.WithMetrics(c.metrics),
		workflow.WithTracer(c.tracer),
		workflow.WithClock(c.now),
	)

	s := &session{id: id, userID: userID, createdAt: c.now(), loop: loop, recorder: recorder}
	c.mu.Lock()
	c.sessions[id] = s
	c.mu.Unlock()

	c.logger.Info("Session %s created for user %s on thread %s", id, userID, thread.ThreadID)
	return c.info(s)
}

func (c *ServerCoordinator) lookup(sessionID string) (*session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[sessionID]
	if !ok {
		return nil, apperrors.NotFoundError(fmt.Sprintf("session not found: %s", sessionID))
	}
	return s, nil
}

func (c *ServerCoordinator) info(s *session) SessionInfo {
	info := SessionInfo{
		ID:           s.id,
		UserID:       s.userID,
		ThreadID:     s.loop.Thread().ThreadID,
		LogSessionID: s.recorder.SessionID(),
		CreatedAt:    s.createdAt,
		Running:      s.loop.Running(),
		Status:       s.loop.Status(),
		MessageCount: len(s.loop.Messages()),
	}
	if h := s.currentHandle(); h != nil && info.Running {
		info.RunID = h.ID
	}
	return info
}

func (c *ServerCoordinator) Session(sessionID string) (SessionInfo, error) {
	s, err := c.lookup(sessionID)
	if err != nil {
		return SessionInfo{}, err
	}
	return c.info(s), nil
}

// ListSessions returns live sessions, oldest first.
func (c *ServerCoordinator) ListSessions() []SessionInfo {
	c.mu.RLock()
	sessions := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].createdAt.Equal(sessions[j].createdAt) {
			return sessions[i].id < sessions[j].id
		}
		return sessions[i].createdAt.Before(sessions[j].createdAt)
	})
	out := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, c.info(s))
	}
	return out
}

// SendMessage starts a run for input and returns its run id. The run is
// bound to the coordinator lifetime, not to the caller.
func (c *ServerCoordinator) SendMessage(sessionID, input string) (string, error) {
	s, err := c.lookup(sessionID)
	if err != nil {
		return "", err
	}
	ctx := observability.ContextWithSessionID(c.ctx, sessionID)
	pub := &runPublisher{broadcaster: c.broadcaster, sessionID: sessionID, now: c.now}

	cb := workflow.Callbacks{
		OnMessage: func(msg messages.Message) {
			wire := messages.ToWire(msg)
			pub.publish(Event{Type: EventMessage, Message: &wire})
			if msg.Kind() == messages.KindAI {
				status := s.loop.Status()
				pub.publish(Event{Type: EventStatus, Status: &status})
			}
		},
		OnTerminal: func(lines []terminal.Line) {
			pub.publish(Event{Type: EventTerminal, Terminal: lines})
		},
		OnError: func(text string) {
			pub.publish(Event{Type: EventError, Text: text})
		},
		OnNotice: func(text string) {
			pub.publish(Event{Type: EventNotice, Text: text})
		},
	}

	handle, err := s.loop.Start(ctx, input, cb)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()
	pub.start(handle.ID)

	go func() {
		result := handle.Wait()
		status := s.loop.Status()
		pub.publish(Event{Type: EventComplete, Result: &result, Status: &status})
		c.logger.Info("Run %s of session %s finished: success=%t events=%d", handle.ID, sessionID, result.Success, result.EventCount)
	}()
	return handle.ID, nil
}

// runPublisher stamps events with their run id. Events emitted before the id
// is known are held back and flushed in order.
type runPublisher struct {
	broadcaster *EventBroadcaster
	sessionID   string
	now         func() time.Time

	mu      sync.Mutex
	runID   string
	started bool
	pending []Event
}

func (p *runPublisher) publish(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	event.SessionID = p.sessionID
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	if !p.started {
		p.pending = append(p.pending, event)
		return
	}
	event.RunID = p.runID
	p.broadcaster.Publish(event)
}

func (p *runPublisher) start(runID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runID = runID
	p.started = true
	for _, event := range p.pending {
		event.RunID = runID
		p.broadcaster.Publish(event)
	}
	p.pending = nil
}

// StopRun stops the in-flight run of a session and reports whether one was
// running.
func (c *ServerCoordinator) StopRun(sessionID string) (bool, error) {
	s, err := c.lookup(sessionID)
	if err != nil {
		return false, err
	}
	return s.loop.Stop(), nil
}

// NewChat finalizes the session log, moves the session to a fresh thread
// and clears its display state. It fails while a run is in flight.
func (c *ServerCoordinator) NewChat(ctx context.Context, sessionID string) (SessionInfo, error) {
	s, err := c.lookup(sessionID)
	if err != nil {
		return SessionInfo{}, err
	}
	previous := s.loop.Thread()
	thread := graph.NewThreadConfig(s.userID, uuid.NewString()[:8]).WithRecursionLimit(c.recursionLimit)
	if err := s.loop.Reset(thread); err != nil {
		return SessionInfo{}, err
	}
	if c.checkpointer != nil && previous.ThreadID != "" {
		if err := c.checkpointer.ClearThread(ctx, previous.ThreadID); err != nil {
			c.logger.Warn("Failed to clear thread %s on new chat: %v", previous.ThreadID, err)
		}
	}
	if _, err := s.recorder.EndSession(ctx); err != nil {
		c.logger.Warn("Failed to save session log for %s: %v", sessionID, err)
	}
	s.recorder.StartSession(c.model)
	s.mu.Lock()
	s.handle = nil
	s.mu.Unlock()

	c.broadcaster.ClearHistory(sessionID)
	status := s.loop.Status()
	c.broadcaster.Publish(Event{Type: EventReset, SessionID: sessionID, Status: &status, Timestamp: c.now()})
	c.logger.Info("Session %s moved to thread %s", sessionID, thread.ThreadID)
	return c.info(s), nil
}

func (c *ServerCoordinator) Messages(sessionID string) ([]messages.Wire, error) {
	s, err := c.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	msgs := s.loop.Messages()
	out := make([]messages.Wire, 0, len(msgs))
	for _, msg := range msgs {
		out = append(out, messages.ToWire(msg))
	}
	return out, nil
}

func (c *ServerCoordinator) Terminal(sessionID string) ([]terminal.Line, error) {
	s, err := c.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return s.loop.Terminal(), nil
}

// ListLogs lists finalized session logs, newest first.
func (c *ServerCoordinator) ListLogs(ctx context.Context, limit int) ([]sessionlog.Summary, error) {
	if c.store == nil {
		return nil, nil
	}
	return c.store.List(ctx, limit)
}

// Replay rebuilds the display state of a logged session. Logs still owned
// by a live recorder are rejected; only finalized logs are replayed.
func (c *ServerCoordinator) Replay(ctx context.Context, logSessionID string) replay.Outcome {
	if owner := c.recordingOwner(logSessionID); owner != "" {
		err := apperrors.ConflictError(fmt.Sprintf("session log %s is still being recorded by session %s", logSessionID, owner))
		return replay.Outcome{Message: err.Error(), Kind: apperrors.KindOf(err), Err: err}
	}
	return c.replayer.ReplaySession(ctx, logSessionID)
}

// recordingOwner returns the id of the session whose recorder is writing
// logSessionID, or "".
func (c *ServerCoordinator) recordingOwner(logSessionID string) string {
	if logSessionID == "" {
		return ""
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, s := range c.sessions {
		if s.recorder.SessionID() == logSessionID {
			return id
		}
	}
	return ""
}

// Shutdown cancels in-flight runs, waits for them up to ctx and saves every
// session log.
func (c *ServerCoordinator) Shutdown(ctx context.Context) error {
	c.cancel()

	c.mu.RLock()
	sessions := make([]*session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.RUnlock()

	for _, s := range sessions {
		if h := s.currentHandle(); h != nil {
			select {
			case <-h.Done():
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if _, err := s.recorder.EndSession(ctx); err != nil {
			c.logger.Warn("Failed to save session log for %s: %v", s.id, err)
		}
	}
	c.logger.Info("Coordinator stopped with %d sessions", len(sessions))
	return nil
}
