// Package app holds the server-side session registry and the fan-out of
// workflow output to connected display clients.
package app

import (
	"time"

	"redswarm/internal/messages"
	"redswarm/internal/terminal"
	"redswarm/internal/workflow"
)

// EventType tags the events pushed to display clients.
type EventType string

const (
	EventMessage  EventType = "message"
	EventTerminal EventType = "terminal"
	EventNotice   EventType = "notice"
	EventError    EventType = "error"
	EventStatus   EventType = "status"
	EventComplete EventType = "complete"
	EventReset    EventType = "reset"
)

// Event is one update for the display of a session.
type Event struct {
	Type      EventType             `json:"type"`
	SessionID string                `json:"session_id"`
	RunID     string                `json:"run_id,omitempty"`
	Message   *messages.Wire        `json:"message,omitempty"`
	Terminal  []terminal.Line       `json:"terminal,omitempty"`
	Text      string                `json:"text,omitempty"`
	Status    *workflow.AgentStatus `json:"status,omitempty"`
	Result    *workflow.RunResult   `json:"result,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}

// critical events must survive a saturated client buffer.
func (e Event) critical() bool {
	switch e.Type {
	case EventComplete, EventError:
		return true
	default:
		return false
	}
}
