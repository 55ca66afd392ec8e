package messages

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"redswarm/internal/agents"
	"redswarm/internal/graph"
)

func TestClassifyEmitsOncePerIdentifier(t *testing.T) {
	seen := NewSeen()
	raw := graph.RawMessage{Type: graph.TypeAI, ID: "msg-1", Content: "scanning"}

	emit, kind := Classify(raw, "Planner", seen)
	assert.True(t, emit)
	assert.Equal(t, KindAI, kind)

	emit, kind = Classify(raw, "Planner", seen)
	assert.False(t, emit)
	assert.Empty(t, kind)
}

func TestClassifySynthesizesIdentifierFromAgentAndContent(t *testing.T) {
	seen := NewSeen()
	raw := graph.RawMessage{Type: graph.TypeTool, Name: "nmap", Content: "22/tcp open"}

	emit, _ := Classify(raw, "Reconnaissance", seen)
	require.True(t, emit)

	emit, _ = Classify(raw, "Reconnaissance", seen)
	assert.False(t, emit, "same agent and content is a repeat")

	emit, _ = Classify(raw, "Planner", seen)
	assert.True(t, emit, "different agent yields a different identifier")
}

func TestClassifyTruncatedPrefixCollides(t *testing.T) {
	seen := NewSeen()
	prefix := strings.Repeat("a", idPrefixLen)
	first := graph.RawMessage{Type: graph.TypeAI, Content: prefix + "first"}
	second := graph.RawMessage{Type: graph.TypeAI, Content: prefix + "second"}

	emit, _ := Classify(first, "Summary", seen)
	require.True(t, emit)
	emit, _ = Classify(second, "Summary", seen)
	assert.False(t, emit)
}

func TestClassifyRejectsUnknownTypes(t *testing.T) {
	seen := NewSeen()
	emit, kind := Classify(graph.RawMessage{Type: "system", ID: "s"}, "Planner", seen)
	assert.False(t, emit)
	assert.Empty(t, kind)
	assert.Equal(t, 0, seen.Len())
}

func TestStableID(t *testing.T) {
	assert.Equal(t, "native", StableID(" native ", "Planner", "x"))
	id := StableID("", "Planner", "hello")
	assert.True(t, strings.HasPrefix(id, "Planner_"))
	assert.Equal(t, id, StableID("", "Planner", "hello"))
	assert.NotEqual(t, id, StableID("", "Planner", "hello!"))
}

func TestFromRawBuildsVariants(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	msg, ok := FromRaw(graph.RawMessage{Type: graph.TypeHuman, Content: " scan 10.0.0.1 "}, "Unknown", at)
	require.True(t, ok)
	user, ok := msg.(UserMessage)
	require.True(t, ok)
	assert.Equal(t, "scan 10.0.0.1", user.Content)
	assert.Equal(t, at, user.CreatedAt())

	msg, ok = FromRaw(graph.RawMessage{
		Type:      graph.TypeAI,
		ID:        "ai-1",
		Content:   []any{map[string]any{"type": "text", "text": "plan"}},
		ToolCalls: []graph.RawToolCall{{ID: "c1", Name: "transfer_to_reconnaissance", Args: map[string]any{}}},
		Usage:     &graph.Usage{InputTokens: 10, OutputTokens: 5},
		Metadata:  map[string]any{"model_name": "gpt-4o"},
	}, "Planner", at)
	require.True(t, ok)
	agent := msg.(AgentMessage)
	assert.Equal(t, agents.Planner, agent.Agent)
	assert.Equal(t, "plan", agent.Content)
	assert.Equal(t, "gpt-4o", agent.Model)
	require.Len(t, agent.ToolCalls, 1)
	assert.Equal(t, "transfer_to_reconnaissance", agent.ToolCalls[0].Name)

	msg, ok = FromRaw(graph.RawMessage{Type: graph.TypeTool, ID: "t1", Name: "nmap_scan", Content: "[-] failed"}, "Reconnaissance", at)
	require.True(t, ok)
	tool := msg.(ToolMessage)
	assert.Equal(t, "Nmap Scan", tool.ToolDisplayName)
	assert.Equal(t, "[-] failed", tool.Content)
	assert.Equal(t, "Reconnaissance", AgentOf(tool))

	_, ok = FromRaw(graph.RawMessage{Type: "system"}, "x", at)
	assert.False(t, ok)
}

func TestClassifierIngest(t *testing.T) {
	c := NewClassifier(nil)
	raw := graph.RawMessage{Type: graph.TypeAI, ID: "a", Content: "x"}

	msg, ok := c.Ingest(raw, "Planner")
	require.True(t, ok)
	assert.Equal(t, KindAI, msg.Kind())

	_, ok = c.Ingest(raw, "Planner")
	assert.False(t, ok)
}

func TestToWire(t *testing.T) {
	w := ToWire(ToolMessage{ID: "t", AgentName: "Planner", ToolName: "shell_exec", ToolDisplayName: "Shell Exec", Content: "ok"})
	assert.Equal(t, KindTool, w.Type)
	assert.Equal(t, "Shell Exec", w.ToolDisplayName)
	assert.Equal(t, "Planner", w.AgentName)

	w = ToWire(UserMessage{ID: "u", Content: "hi"})
	assert.Equal(t, KindUser, w.Type)
	assert.Empty(t, w.AgentName)
}
