package agents

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw  string
		want Key
	}{
		{"initial_access_swarm:uuid", InitialAccess},
		{"recon_node:uuid", Reconnaissance},
		{"Reconnaissance:1234", Reconnaissance},
		{"totally_unknown:uuid", Unknown},
		{"", Unknown},
		{"PLANNER", Planner},
		{"privilege_agent", PrivilegeEscalation},
		{"evasion", DefenseEvasion},
		{"Summary_Tool:abc", Summary},
		{"planner_summary", Planner},
		{"tool_supervisor", Tool},
		{"supervisor", Supervisor},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			got := Normalize(tc.raw)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, got, Normalize(tc.raw))
		})
	}
}

func TestFromNamespace(t *testing.T) {
	assert.Equal(t, "Planner", FromNamespace([]string{"Planner:5f1c", "tools:9"}))
	assert.Equal(t, UnknownName, FromNamespace(nil))
	assert.Equal(t, UnknownName, FromNamespace([]string{"noseparator"}))
	assert.Equal(t, "", FromNamespace([]string{":leading"}))
	assert.Equal(t, "", ActivityName(FromNamespace([]string{":leading"})))
}

func TestActivityName(t *testing.T) {
	assert.Equal(t, "initial_access", ActivityName("Initial_Access"))
	assert.Equal(t, "custom", ActivityName("Custom"))
	assert.Equal(t, "", ActivityName("Unknown"))
	assert.Equal(t, "", ActivityName("  "))
}

func TestTableLookupsFallBackToDefault(t *testing.T) {
	table := DefaultTable()

	assert.Equal(t, "Initial Access", table.DisplayName("initial_access_swarm:uuid"))
	assert.Equal(t, "Unknown Agent", table.DisplayName(""))
	assert.Equal(t, "Unknown Agent", table.DisplayName(UnknownName))
	assert.Equal(t, "Lateral Movement", table.DisplayName("lateral_movement"))
	assert.Equal(t, "Scout", table.DisplayName("SCOUT"))

	fallback := table.Fallback()
	assert.Equal(t, fallback.Color, table.Color("mystery"))
	assert.Equal(t, fallback.CSSClass, table.CSSClass("mystery"))
	assert.Equal(t, fallback.Avatar, table.Avatar("mystery"))
	assert.Equal(t, "cyan", table.CLIColor("planner"))
}

func TestLoadTableMergesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	content := `
default:
  avatar: "?"
agents:
  Planner:
    display_name: Strategist
  recon:
    color: "#000000"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	table, err := LoadTable(path)
	require.NoError(t, err)

	assert.Equal(t, "Strategist", table.DisplayName("planner"))
	assert.Equal(t, "cyan", table.CLIColor("planner"))
	assert.Equal(t, "#000000", table.Color("reconnaissance"))
	assert.Equal(t, "?", table.Avatar("nobody"))
	assert.Equal(t, "Unknown Agent", table.Fallback().DisplayName)

	info := table.Info("planner:1")
	assert.Equal(t, Planner, info.Key)
	assert.Equal(t, "Strategist", info.DisplayName)
	assert.Len(t, table.All(), len(Keys()))
}

func TestLoadTableRejectsUnknownAgents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agents.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agents:\n  wizard: {}\n"), 0o644))

	_, err := LoadTable(path)
	require.Error(t, err)
}
