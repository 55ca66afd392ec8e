// Package messages holds the conversation message sum type shared by live
// execution and replay, and the classifier that turns raw graph messages
// into it exactly once per run.
package messages

import (
	"time"

	"redswarm/internal/agents"
	"redswarm/internal/graph"
)

// Kind tags the Message variants.
type Kind string

const (
	KindUser Kind = "user"
	KindAI   Kind = "ai"
	KindTool Kind = "tool"
)

// ToolCall is a tool invocation requested by an agent.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Message is implemented by UserMessage, AgentMessage and ToolMessage only.
type Message interface {
	Kind() Kind
	Identifier() string
	Body() string
	CreatedAt() time.Time
	isMessage()
}

type UserMessage struct {
	ID        string
	Content   string
	Timestamp time.Time
}

type AgentMessage struct {
	ID        string
	AgentName string
	Agent     agents.Key
	Content   string
	ToolCalls []ToolCall
	Model     string
	Usage     *graph.Usage
	Timestamp time.Time
}

type ToolMessage struct {
	ID              string
	AgentName       string
	ToolName        string
	ToolDisplayName string
	ToolCallID      string
	Content         string
	Timestamp       time.Time
}

func (UserMessage) Kind() Kind { return KindUser }
func (m UserMessage) Identifier() string { return m.ID }
func (m UserMessage) Body() string { return m.Content }
func (m UserMessage) CreatedAt() time.Time { return m.Timestamp }
func (UserMessage) isMessage() {}
func (AgentMessage) Kind() Kind { return KindAI }
func (m AgentMessage) Identifier() string { return m.ID }
func (m AgentMessage) Body() string { return m.Content }
func (m AgentMessage) CreatedAt() time.Time { return m.Timestamp }
func (AgentMessage) isMessage() {}
func (ToolMessage) Kind() Kind { return KindTool }
func (m ToolMessage) Identifier() string { return m.ID }
func (m ToolMessage) Body() string { return m.Content }
func (m ToolMessage) CreatedAt() time.Time { return m.Timestamp }
func (ToolMessage) isMessage() {}

// AgentOf returns the raw agent name a message is attributed to.
func AgentOf(m Message) string {
	switch v := m.(type) {
	case UserMessage:
		return UserAgentName
	case AgentMessage:
		return v.AgentName
	case ToolMessage:
		if v.AgentName != "" {
			return v.AgentName
		}
		return ToolAgentName
	default:
		return agents.UnknownName
	}
}

// Wire is the JSON form of a Message sent to display surfaces.
type Wire struct {
	Type            Kind       `json:"type"`
	ID              string     `json:"id"`
	AgentName       string     `json:"agent_name,omitempty"`
	Agent           agents.Key `json:"agent,omitempty"`
	Content         string     `json:"content"`
	ToolCalls       []ToolCall `json:"tool_calls,omitempty"`
	ToolName        string     `json:"tool_name,omitempty"`
	ToolDisplayName string     `json:"tool_display_name,omitempty"`
	Model           string     `json:"model,omitempty"`
	Timestamp       time.Time  `json:"timestamp"`
}

// ToWire flattens a message for JSON transport.
func ToWire(m Message) Wire {
	w := Wire{
		Type:      m.Kind(),
		ID:        m.Identifier(),
		Content:   m.Body(),
		Timestamp: m.CreatedAt(),
	}
	switch v := m.(type) {
	case AgentMessage:
		w.AgentName = v.AgentName
		w.Agent = v.Agent
		w.ToolCalls = v.ToolCalls
		w.Model = v.Model
	case ToolMessage:
		w.AgentName = v.AgentName
		w.ToolName = v.ToolName
		w.ToolDisplayName = v.ToolDisplayName
	}
	return w
}
