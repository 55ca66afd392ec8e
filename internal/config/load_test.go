package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func TestLoadDefaults(t *testing.T) {
	cfg, meta, err := Load(WithSearchPaths(t.TempDir()), WithEnvLookup(noEnv))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultGraphURL, cfg.Graph.BaseURL)
	assert.Equal(t, "swarm", cfg.Graph.AssistantID)
	assert.Equal(t, 150, cfg.Graph.RecursionLimit)
	assert.Equal(t, 20, cfg.Workflow.MaxStructuredMessages)
	assert.Equal(t, 50, cfg.Workflow.MaxEventHistory)
	assert.Equal(t, 30, cfg.Workflow.CheckpointResetTurns)
	assert.Equal(t, 40, cfg.Workflow.NewChatWarningTurns)
	assert.Equal(t, 60*time.Minute, cfg.Workflow.IdleTimeout)
	assert.False(t, cfg.Workflow.LogToolCommands)
	assert.Equal(t, 200, cfg.Terminal.MaxLines)
	assert.Equal(t, "logs", cfg.SessionLog.Dir)
	assert.Equal(t, 20, cfg.SessionLog.ListLimit)
	assert.Equal(t, 128, cfg.SessionLog.CacheSize)
	assert.Equal(t, "info", cfg.Observability.Logging.Level)

	assert.Empty(t, meta.File())
	assert.Empty(t, meta.Keys())
	assert.Equal(t, SourceDefault, meta.Source("server.port"))
	assert.False(t, meta.LoadedAt().IsZero())
}

func TestLoadLayersFileEnvAndOverrides(t *testing.T) {
	dir := t.TempDir()
	body := `
server:
  port: 9000
  host: 0.0.0.0
graph:
  base_url: http://graph.internal:8123
  assistant_id: redteam
workflow:
  idle_timeout: 5m
  log_tool_commands: true
sessionlog:
  dir: /var/lib/redswarm/logs
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "redswarm.yaml"), []byte(body), 0o644))

	t.Setenv("REDSWARM_GRAPH_ASSISTANT_ID", "from-env")
	t.Setenv("REDSWARM_TERMINAL_MAX_LINES", "50")

	cfg, meta, err := Load(
		WithSearchPaths(dir),
		WithOverrides(map[string]any{"server.port": 9100}),
	)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "http://graph.internal:8123", cfg.Graph.BaseURL)
	assert.Equal(t, "from-env", cfg.Graph.AssistantID)
	assert.Equal(t, 5*time.Minute, cfg.Workflow.IdleTimeout)
	assert.True(t, cfg.Workflow.LogToolCommands)
	assert.Equal(t, 50, cfg.Terminal.MaxLines)
	assert.Equal(t, "/var/lib/redswarm/logs", cfg.SessionLog.Dir)

	assert.Equal(t, filepath.Join(dir, "redswarm.yaml"), meta.File())
	assert.Equal(t, SourceOverride, meta.Source("server.port"))
	assert.Equal(t, SourceFile, meta.Source("server.host"))
	assert.Equal(t, SourceEnv, meta.Source("graph.assistant_id"))
	assert.Equal(t, SourceEnv, meta.Source("terminal.max_lines"))
	assert.Equal(t, SourceDefault, meta.Source("graph.recursion_limit"))
	assert.Contains(t, meta.Keys(), "workflow.idle_timeout")
}

func TestLoadExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model:\n  name: gpt-4o\n  display_name: GPT-4o\n"), 0o644))

	cfg, _, err := Load(WithConfigFile(path), WithEnvLookup(noEnv))
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.Model.Name)
	assert.Equal(t, "GPT-4o", cfg.Model.Label())

	_, _, err = Load(WithConfigFile(filepath.Join(t.TempDir(), "missing.yaml")), WithEnvLookup(noEnv))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, _, err := Load(
		WithSearchPaths(t.TempDir()),
		WithEnvLookup(noEnv),
		WithOverrides(map[string]any{"server.port": 0}),
	)
	assert.ErrorContains(t, err, "server.port")

	_, _, err = Load(
		WithSearchPaths(t.TempDir()),
		WithEnvLookup(noEnv),
		WithOverrides(map[string]any{"observability.logging.level": "loud"}),
	)
	assert.ErrorContains(t, err, "log level")
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "redswarm.yaml"), []byte("server: [unclosed"), 0o644))

	_, _, err := Load(WithSearchPaths(dir), WithEnvLookup(noEnv))
	assert.Error(t, err)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "REDSWARM_WORKFLOW_IDLE_TIMEOUT", EnvName("workflow.idle_timeout"))
}

func TestModelLabelFallsBackToName(t *testing.T) {
	assert.Equal(t, "gpt-4o-mini", ModelConfig{Name: "gpt-4o-mini"}.Label())
}
