// Package replay rebuilds the message sequence of a recorded session
// without the live graph.
package replay

import (
	"redswarm/internal/agents"
	"redswarm/internal/messages"
	"redswarm/internal/sessionlog"
	"redswarm/internal/terminal"
)

// CommandPrefix marks replayed tool_command entries.
const CommandPrefix = "Command: "

// Result is the reconstructed view of a session.
type Result struct {
	SessionID       string             `json:"session_id"`
	Model           string             `json:"model,omitempty"`
	EventCount      int                `json:"event_count"`
	Messages        []messages.Message `json:"-"`
	Terminal        []terminal.Line    `json:"terminal"`
	ActiveAgent     string             `json:"active_agent"`
	CompletedAgents []string           `json:"completed_agents"`
	AgentActivity   map[string]int     `json:"agent_activity"`
}

// Wire returns the messages in their transport form.
func (r *Result) Wire() []messages.Wire {
	out := make([]messages.Wire, 0, len(r.Messages))
	for _, m := range r.Messages {
		out = append(out, messages.ToWire(m))
	}
	return out
}

// Replay maps each logged event onto the message a live run would have
// emitted for it. Identifiers use the live scheme and repeats are dropped
// within a user turn, the same scope a live run dedupes in. The session is
// not modified.
func Replay(session *sessionlog.Session) *Result {
	result := &Result{
		CompletedAgents: []string{},
		AgentActivity:   make(map[string]int),
		Terminal:        []terminal.Line{},
	}
	if session == nil {
		return result
	}
	result.SessionID = session.ID
	result.Model = session.Model
	result.EventCount = len(session.Events)

	seen := messages.NewSeen()
	var aiAgents []string
	for _, event := range session.Events {
		if event.Type == sessionlog.EventUserInput {
			seen = messages.NewSeen()
		}
		msg, ok := toMessage(event)
		if !ok || !seen.Observe(msg.Identifier()) {
			continue
		}
		result.Messages = append(result.Messages, msg)

		switch m := msg.(type) {
		case messages.AgentMessage:
			result.AgentActivity[m.AgentName]++
			if name := agents.ActivityName(m.AgentName); name != "" {
				aiAgents = append(aiAgents, name)
			}
		case messages.ToolMessage:
			result.AgentActivity[messages.AgentOf(m)]++
			stamp := m.Timestamp.Format(terminal.TimestampLayout)
			result.Terminal = append(result.Terminal, terminal.Render(m.ToolDisplayName, m.Content, stamp)...)
		}
	}

	if n := len(aiAgents); n > 0 {
		result.ActiveAgent = aiAgents[n-1]
		for _, name := range aiAgents {
			if name != result.ActiveAgent && !contains(result.CompletedAgents, name) {
				result.CompletedAgents = append(result.CompletedAgents, name)
			}
		}
	}
	return result
}

func toMessage(event sessionlog.Event) (messages.Message, bool) {
	at := event.Timestamp.Time
	switch event.Type {
	case sessionlog.EventUserInput:
		return messages.UserMessage{
			ID:        messages.StableID("", messages.UserAgentName, event.Content),
			Content:   event.Content,
			Timestamp: at,
		}, true
	case sessionlog.EventAgentResponse:
		agentName := event.AgentName
		if agentName == "" {
			agentName = agents.UnknownName
		}
		return messages.AgentMessage{
			ID:        messages.StableID("", agentName, event.Content),
			AgentName: agentName,
			Agent:     agents.Normalize(agentName),
			Content:   event.Content,
			ToolCalls: append([]messages.ToolCall(nil), event.ToolCalls...),
			Timestamp: at,
		}, true
	case sessionlog.EventToolCommand, sessionlog.EventToolOutput:
		content := event.Content
		if event.Type == sessionlog.EventToolCommand {
			content = CommandPrefix + content
		}
		agentName := event.AgentName
		if agentName == "" {
			agentName = messages.ToolAgentName
		}
		toolName := event.ToolName
		display := messages.DisplayToolName(toolName)
		if toolName == "" {
			display = messages.ToolAgentName
		}
		return messages.ToolMessage{
			ID:              messages.StableID("", agentName, content),
			AgentName:       event.AgentName,
			ToolName:        toolName,
			ToolDisplayName: display,
			Content:         content,
			Timestamp:       at,
		}, true
	default:
		return nil, false
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
