// Package graph defines the contract of the external agent execution graph:
// a per-call update stream of (namespace, {node: state}) ticks and its
// checkpoint storage.
package graph

import (
	"context"
	"fmt"
	"strings"
)

// Message types as reported by the graph.
const (
	TypeHuman = "human"
	TypeAI    = "ai"
	TypeTool  = "tool"
)

// RawMessage is a message exactly as the graph reports it. Content is either
// a string or a list of content parts.
type RawMessage struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Name       string         `json:"name,omitempty"`
	Content    any            `json:"content"`
	ToolCalls  []RawToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Usage      *Usage         `json:"usage_metadata,omitempty"`
	Metadata   map[string]any `json:"response_metadata,omitempty"`
}

// RawToolCall is a tool invocation requested by a model response.
type RawToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// Usage carries token accounting attached to a model response.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// ModelName returns the model reported in response metadata, if any.
func (m RawMessage) ModelName() string {
	if m.Metadata == nil {
		return ""
	}
	for _, key := range []string{"model_name", "model"} {
		if name, ok := m.Metadata[key].(string); ok && name != "" {
			return name
		}
	}
	return ""
}

// NodeUpdate is the state one node reported in a tick.
type NodeUpdate struct {
	Node string
	// Messages is the node's message list. The graph re-emits the cumulative
	// list, so the last entry is the increment for the tick.
	Messages []RawMessage
}

// Latest returns the tail message of the node's list.
func (n NodeUpdate) Latest() (RawMessage, bool) {
	if len(n.Messages) == 0 {
		return RawMessage{}, false
	}
	return n.Messages[len(n.Messages)-1], true
}

// Update is one tick of the stream. Nodes preserve the order the graph
// reported them in.
type Update struct {
	Namespace []string
	Nodes     []NodeUpdate
}

// UpdateStream yields ticks until io.EOF. Close must be called on every exit
// path and is safe to call more than once.
type UpdateStream interface {
	Next(ctx context.Context) (Update, error)
	Close() error
}

// Graph starts a fresh update stream for one user turn.
type Graph interface {
	Stream(ctx context.Context, input RawMessage, thread ThreadConfig) (UpdateStream, error)
}

// Checkpointer invalidates the externally stored state of a thread.
// Clearing an already empty thread is not an error.
type Checkpointer interface {
	ClearThread(ctx context.Context, threadID string) error
}

// DefaultCheckpointNS is the checkpoint namespace of the main thread.
const DefaultCheckpointNS = "main"

// DefaultRecursionLimit bounds graph super-steps per run.
const DefaultRecursionLimit = 150

// ThreadConfig correlates a user conversation with the graph checkpoint. It
// is passed through to the graph unchanged.
type ThreadConfig struct {
	ThreadID       string         `json:"thread_id"`
	CheckpointNS   string         `json:"checkpoint_ns"`
	RecursionLimit int            `json:"recursion_limit"`
	Configurable   map[string]any `json:"configurable,omitempty"`
}

// NewThreadConfig derives the thread identity of a user conversation.
func NewThreadConfig(userID, conversationID string) ThreadConfig {
	threadID := fmt.Sprintf("user_%s", strings.TrimSpace(userID))
	if conv := strings.TrimSpace(conversationID); conv != "" {
		threadID = fmt.Sprintf("%s_conv_%s", threadID, conv)
	}
	return ThreadConfig{
		ThreadID:       threadID,
		CheckpointNS:   DefaultCheckpointNS,
		RecursionLimit: DefaultRecursionLimit,
	}
}

// WithRecursionLimit returns a copy using limit when positive.
func (c ThreadConfig) WithRecursionLimit(limit int) ThreadConfig {
	if limit > 0 {
		c.RecursionLimit = limit
	}
	return c
}

// ConfigurableMap renders the config the way graph servers expect it.
func (c ThreadConfig) ConfigurableMap() map[string]any {
	out := make(map[string]any, len(c.Configurable)+2)
	for k, v := range c.Configurable {
		out[k] = v
	}
	out["thread_id"] = c.ThreadID
	if c.CheckpointNS != "" {
		out["checkpoint_ns"] = c.CheckpointNS
	}
	return out
}
