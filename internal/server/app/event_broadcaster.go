package app

import (
	"sync"
	"sync/atomic"

	"redswarm/internal/logging"
)

const defaultMaxHistory = 500

// EventBroadcaster fans session events out to subscribed client channels
// and keeps a bounded backlog per session for late subscribers.
type EventBroadcaster struct {
	// sessionID -> client channels
	clients map[string][]chan Event
	mu      sync.RWMutex
	logger  logging.Logger

	history    map[string][]Event
	historyMu  sync.RWMutex
	maxHistory int

	metrics broadcasterMetrics
}

type broadcasterMetrics struct {
	totalEventsSent   atomic.Int64
	droppedEvents     atomic.Int64
	totalConnections  atomic.Int64
	activeConnections atomic.Int64
}

// BroadcasterStats is a point-in-time copy of the broadcaster counters.
type BroadcasterStats struct {
	TotalEventsSent   int64 `json:"total_events_sent"`
	DroppedEvents     int64 `json:"dropped_events"`
	TotalConnections  int64 `json:"total_connections"`
	ActiveConnections int64 `json:"active_connections"`
}

type BroadcasterOption func(*EventBroadcaster)

// WithMaxHistory bounds the per-session backlog; non-positive disables it.
func WithMaxHistory(n int) BroadcasterOption {
	return func(b *EventBroadcaster) { b.maxHistory = n }
}

func WithBroadcasterLogger(logger logging.Logger) BroadcasterOption {
	return func(b *EventBroadcaster) { b.logger = logging.OrNop(logger) }
}

func NewEventBroadcaster(opts ...BroadcasterOption) *EventBroadcaster {
	b := &EventBroadcaster{
		clients:    make(map[string][]chan Event),
		history:    make(map[string][]Event),
		maxHistory: defaultMaxHistory,
		logger:     logging.NewComponentLogger("EventBroadcaster"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish stores event in the session backlog and delivers it to every
// client of the session without blocking.
func (b *EventBroadcaster) Publish(event Event) {
	if event.SessionID == "" {
		b.logger.Warn("Dropping %s event without session id", event.Type)
		return
	}
	b.storeHistory(event)

	b.mu.RLock()
	defer b.mu.RUnlock()
	clients := b.clients[event.SessionID]
	if len(clients) == 0 {
		b.logger.Debug("No clients for session %s (event: %s)", event.SessionID, event.Type)
		return
	}
	for i, ch := range clients {
		select {
		case ch <- event:
			b.metrics.totalEventsSent.Add(1)
		default:
			if event.critical() && b.deliverCritical(ch, event) {
				continue
			}
			b.logger.Warn("Client buffer full for session %s, dropping %s event (client %d/%d)", event.SessionID, event.Type, i+1, len(clients))
			b.metrics.droppedEvents.Add(1)
		}
	}
}

// deliverCritical makes room for event by discarding the oldest buffered
// event.
func (b *EventBroadcaster) deliverCritical(ch chan Event, event Event) bool {
	select {
	case <-ch:
		b.metrics.droppedEvents.Add(1)
	default:
	}
	select {
	case ch <- event:
		b.logger.Warn("Client buffer saturated for session %s; dropped oldest event to deliver %s", event.SessionID, event.Type)
		b.metrics.totalEventsSent.Add(1)
		return true
	default:
		return false
	}
}

func (b *EventBroadcaster) storeHistory(event Event) {
	if b.maxHistory <= 0 {
		return
	}
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	events := append(b.history[event.SessionID], event)
	if over := len(events) - b.maxHistory; over > 0 {
		events = append([]Event(nil), events[over:]...)
	}
	b.history[event.SessionID] = events
}

// History returns the backlog of a session, oldest first.
func (b *EventBroadcaster) History(sessionID string) []Event {
	b.historyMu.RLock()
	defer b.historyMu.RUnlock()
	return append([]Event(nil), b.history[sessionID]...)
}

// ClearHistory drops the backlog of a session.
func (b *EventBroadcaster) ClearHistory(sessionID string) {
	b.historyMu.Lock()
	defer b.historyMu.Unlock()
	delete(b.history, sessionID)
}

// RegisterClient subscribes ch to the events of a session.
func (b *EventBroadcaster) RegisterClient(sessionID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[sessionID] = append(b.clients[sessionID], ch)
	b.metrics.totalConnections.Add(1)
	b.metrics.activeConnections.Add(1)
	b.logger.Info("Client registered for session %s (total: %d)", sessionID, len(b.clients[sessionID]))
}

// UnregisterClient removes ch and closes it.
func (b *EventBroadcaster) UnregisterClient(sessionID string, ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	clients := b.clients[sessionID]
	for i, client := range clients {
		if client != ch {
			continue
		}
		b.clients[sessionID] = append(clients[:i], clients[i+1:]...)
		close(ch)
		b.metrics.activeConnections.Add(-1)
		b.logger.Info("Client unregistered from session %s (remaining: %d)", sessionID, len(b.clients[sessionID]))
		if len(b.clients[sessionID]) == 0 {
			delete(b.clients, sessionID)
		}
		return
	}
}

func (b *EventBroadcaster) ClientCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients[sessionID])
}

func (b *EventBroadcaster) Stats() BroadcasterStats {
	return BroadcasterStats{
		TotalEventsSent:   b.metrics.totalEventsSent.Load(),
		DroppedEvents:     b.metrics.droppedEvents.Load(),
		TotalConnections:  b.metrics.totalConnections.Load(),
		ActiveConnections: b.metrics.activeConnections.Load(),
	}
}
