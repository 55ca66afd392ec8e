package executor

import (
	"time"

	"redswarm/internal/messages"
	"redswarm/internal/metrics"
)

// EventType tags the Event variants.
type EventType string

const (
	EventMessage          EventType = "message"
	EventWorkflowComplete EventType = "workflow_complete"
	EventError            EventType = "error"
)

// Event is what a Run emits. A run emits any number of message events
// followed by exactly one workflow_complete or error event.
type Event struct {
	Type            EventType           `json:"type"`
	MessageType     messages.Kind       `json:"message_type,omitempty"`
	AgentName       string              `json:"agent_name,omitempty"`
	Namespace       []string            `json:"namespace,omitempty"`
	Content         string              `json:"content,omitempty"`
	ToolName        string              `json:"tool_name,omitempty"`
	ToolDisplayName string              `json:"tool_display_name,omitempty"`
	Message         messages.Message    `json:"-"`
	StepCount       int                 `json:"step_count"`
	Metrics         *metrics.RunMetrics `json:"metrics,omitempty"`
	Error           string              `json:"error,omitempty"`
	Cancelled       bool                `json:"cancelled,omitempty"`
	Timestamp       time.Time           `json:"timestamp"`
}

// Terminal reports whether the event ends its run.
func (e Event) Terminal() bool {
	return e.Type == EventWorkflowComplete || e.Type == EventError
}

func messageEvent(msg messages.Message, agentName string, namespace []string, step int, at time.Time) Event {
	event := Event{
		Type:        EventMessage,
		MessageType: msg.Kind(),
		AgentName:   agentName,
		Namespace:   namespace,
		Content:     msg.Body(),
		Message:     msg,
		StepCount:   step,
		Timestamp:   at,
	}
	if tool, ok := msg.(messages.ToolMessage); ok {
		event.ToolName = tool.ToolName
		event.ToolDisplayName = tool.ToolDisplayName
	}
	return event
}
