package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewThreadConfig(t *testing.T) {
	cfg := NewThreadConfig("alice", "42")
	assert.Equal(t, "user_alice_conv_42", cfg.ThreadID)
	assert.Equal(t, DefaultCheckpointNS, cfg.CheckpointNS)
	assert.Equal(t, DefaultRecursionLimit, cfg.RecursionLimit)

	assert.Equal(t, "user_bob", NewThreadConfig("bob", " ").ThreadID)
	assert.Equal(t, 20, cfg.WithRecursionLimit(20).RecursionLimit)
	assert.Equal(t, DefaultRecursionLimit, cfg.WithRecursionLimit(0).RecursionLimit)
}

func TestConfigurableMapKeepsExtras(t *testing.T) {
	cfg := NewThreadConfig("alice", "")
	cfg.Configurable = map[string]any{"model": "gpt-4o", "thread_id": "ignored"}

	out := cfg.ConfigurableMap()
	assert.Equal(t, "user_alice", out["thread_id"])
	assert.Equal(t, "main", out["checkpoint_ns"])
	assert.Equal(t, "gpt-4o", out["model"])
}

func TestLatestAndModelName(t *testing.T) {
	node := NodeUpdate{Node: "agent", Messages: []RawMessage{{ID: "1"}, {ID: "2"}}}
	latest, ok := node.Latest()
	assert.True(t, ok)
	assert.Equal(t, "2", latest.ID)

	_, ok = NodeUpdate{}.Latest()
	assert.False(t, ok)

	msg := RawMessage{Metadata: map[string]any{"model_name": "gpt-4o-mini"}}
	assert.Equal(t, "gpt-4o-mini", msg.ModelName())
	assert.Empty(t, RawMessage{}.ModelName())
}
