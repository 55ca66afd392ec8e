// Package sessionlog persists the auditable per-session event log that
// replay reads back.
package sessionlog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"redswarm/internal/messages"
)

// EventType enumerates the persisted event kinds.
type EventType string

const (
	EventUserInput     EventType = "user_input"
	EventAgentResponse EventType = "agent_response"
	EventToolCommand   EventType = "tool_command"
	EventToolOutput    EventType = "tool_output"
)

func (t EventType) Valid() bool {
	switch t {
	case EventUserInput, EventAgentResponse, EventToolCommand, EventToolOutput:
		return true
	}
	return false
}

// Event is one logged interaction.
type Event struct {
	Type      EventType           `json:"event_type"`
	Timestamp Timestamp           `json:"timestamp"`
	Content   string              `json:"content"`
	AgentName string              `json:"agent_name,omitempty"`
	ToolName  string              `json:"tool_name,omitempty"`
	ToolCalls []messages.ToolCall `json:"tool_calls,omitempty"`
}

// Session is the persisted unit of history.
type Session struct {
	ID        string    `json:"session_id"`
	StartTime Timestamp `json:"start_time"`
	Model     string    `json:"model,omitempty"`
	Events    []Event   `json:"events"`
}

// Clone returns a deep copy safe to hand to readers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Events = make([]Event, len(s.Events))
	for i, event := range s.Events {
		event.ToolCalls = append([]messages.ToolCall(nil), event.ToolCalls...)
		out.Events[i] = event
	}
	return &out
}

// Summary is the lightweight listing entry for a stored session.
type Summary struct {
	ID         string    `json:"session_id"`
	StartTime  Timestamp `json:"start_time"`
	EventCount int       `json:"event_count"`
	FilePath   string    `json:"file_path"`
	Model      string    `json:"model,omitempty"`
	Preview    string    `json:"preview"`
}

const (
	previewLen  = 100
	noUserInput = "No user input found"
)

// Preview returns the first user input cut to a short prefix.
func Preview(events []Event) string {
	for _, event := range events {
		if event.Type != EventUserInput {
			continue
		}
		runes := []rune(event.Content)
		if len(runes) > previewLen {
			return string(runes[:previewLen]) + "..."
		}
		return event.Content
	}
	return noUserInput
}

func summarize(session *Session, path string) Summary {
	return Summary{
		ID:         session.ID,
		StartTime:  session.StartTime,
		EventCount: len(session.Events),
		FilePath:   path,
		Model:      session.Model,
		Preview:    Preview(session.Events),
	}
}

// Timestamp is an ISO 8601 instant. It also accepts local timestamps
// without a zone offset, which older logs contain.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unsupported format %q", raw)
}
