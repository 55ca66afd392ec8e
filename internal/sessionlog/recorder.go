package sessionlog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"redswarm/internal/messages"
)

// Recorder accumulates the events of the current session and persists them
// through a Store. It is safe for concurrent use. Logging without a started
// session is a no-op.
type Recorder struct {
	mu      sync.Mutex
	store   *Store
	current *Session
	now     func() time.Time
	newID   func() string
}

type RecorderOption func(*Recorder)

func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

func WithIDGenerator(newID func() string) RecorderOption {
	return func(r *Recorder) {
		if newID != nil {
			r.newID = newID
		}
	}
}

func NewRecorder(store *Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StartSession replaces the current session with a fresh one and returns
// its id.
func (r *Recorder) StartSession(model string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = &Session{
		ID:        r.newID(),
		StartTime: NewTimestamp(r.now()),
		Model:     model,
		Events:    []Event{},
	}
	return r.current.ID
}

// SessionID returns the current session id, or "" when none is started.
func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return ""
	}
	return r.current.ID
}

func (r *Recorder) LogUserInput(content string) {
	r.append(Event{Type: EventUserInput, Content: content})
}

func (r *Recorder) LogAgentResponse(agentName, content string, toolCalls []messages.ToolCall) {
	r.append(Event{
		Type:      EventAgentResponse,
		Content:   content,
		AgentName: agentName,
		ToolCalls: append([]messages.ToolCall(nil), toolCalls...),
	})
}

func (r *Recorder) LogToolCommand(toolName, agentName, command string) {
	r.append(Event{Type: EventToolCommand, Content: command, ToolName: toolName, AgentName: agentName})
}

func (r *Recorder) LogToolOutput(toolName, agentName, output string) {
	r.append(Event{Type: EventToolOutput, Content: output, ToolName: toolName, AgentName: agentName})
}

func (r *Recorder) append(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return
	}
	event.Timestamp = NewTimestamp(r.now())
	r.current.Events = append(r.current.Events, event)
}

// Snapshot returns a copy of the current session, or nil.
func (r *Recorder) Snapshot() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current.Clone()
}

// Save persists the current session. It reports false when there is no
// session or it has no events.
func (r *Recorder) Save(ctx context.Context) (bool, error) {
	snapshot := r.Snapshot()
	if snapshot == nil || r.store == nil {
		return false, nil
	}
	return r.store.Save(ctx, snapshot)
}

// EndSession saves and forgets the current session, returning its id.
func (r *Recorder) EndSession(ctx context.Context) (string, error) {
	snapshot := r.Snapshot()
	if snapshot == nil {
		return "", nil
	}
	var err error
	if r.store != nil {
		_, err = r.store.Save(ctx, snapshot)
	}
	r.mu.Lock()
	if r.current != nil && r.current.ID == snapshot.ID {
		r.current = nil
	}
	r.mu.Unlock()
	return snapshot.ID, err
}
