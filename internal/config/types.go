// Package config loads layered runtime settings for redswarm binaries.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"redswarm/internal/graph/langgraph"
	"redswarm/internal/observability"
	"redswarm/internal/workflow"
)

// ValueSource describes where a configuration value originated from.
type ValueSource string

const (
	SourceDefault  ValueSource = "default"
	SourceFile     ValueSource = "file"
	SourceEnv      ValueSource = "environment"
	SourceOverride ValueSource = "override"
)

const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 8501
	DefaultGraphURL       = "http://localhost:2024"
	DefaultRecursionLimit = 150
	DefaultModel          = "gpt-4o-mini"
	EnvPrefix             = "REDSWARM"
	configName            = "redswarm"
)

// Config is the complete runtime configuration.
type Config struct {
	Server        ServerConfig         `mapstructure:"server" yaml:"server"`
	Graph         GraphConfig          `mapstructure:"graph" yaml:"graph"`
	Workflow      workflow.Config      `mapstructure:"workflow" yaml:"workflow"`
	Terminal      TerminalConfig       `mapstructure:"terminal" yaml:"terminal"`
	SessionLog    SessionLogConfig     `mapstructure:"sessionlog" yaml:"sessionlog"`
	Agents        AgentsConfig         `mapstructure:"agents" yaml:"agents"`
	Model         ModelConfig          `mapstructure:"model" yaml:"model"`
	Observability observability.Config `mapstructure:"observability" yaml:"observability"`
}

type ServerConfig struct {
	Host        string   `mapstructure:"host" yaml:"host"`
	Port        int      `mapstructure:"port" yaml:"port"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`
	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type GraphConfig struct {
	langgraph.Config `mapstructure:",squash" yaml:",inline"`
	RecursionLimit   int `mapstructure:"recursion_limit" yaml:"recursion_limit"`
}

type TerminalConfig struct {
	MaxLines int `mapstructure:"max_lines" yaml:"max_lines"`
}

type SessionLogConfig struct {
	Dir       string `mapstructure:"dir" yaml:"dir"`
	ListLimit int    `mapstructure:"list_limit" yaml:"list_limit"`
	CacheSize int    `mapstructure:"cache_size" yaml:"cache_size"`
}

type AgentsConfig struct {
	// ProfilesFile overrides the built-in agent profile table.
	ProfilesFile string `mapstructure:"profiles_file" yaml:"profiles_file"`
}

type ModelConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	DisplayName string `mapstructure:"display_name" yaml:"display_name"`
}

// Label is the model name recorded in session logs.
func (m ModelConfig) Label() string {
	if strings.TrimSpace(m.DisplayName) != "" {
		return m.DisplayName
	}
	return m.Name
}

// Validate rejects values no component can run with.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Graph.BaseURL) == "" {
		return fmt.Errorf("graph.base_url is required")
	}
	if c.Graph.RecursionLimit <= 0 {
		return fmt.Errorf("graph.recursion_limit must be positive: %d", c.Graph.RecursionLimit)
	}
	if strings.TrimSpace(c.SessionLog.Dir) == "" {
		return fmt.Errorf("sessionlog.dir is required")
	}
	return c.Observability.Validate()
}

// Metadata records the provenance of every known key.
type Metadata struct {
	sources  map[string]ValueSource
	file     string
	loadedAt time.Time
}

// Source reports where key came from. Unknown keys report SourceDefault.
func (m Metadata) Source(key string) ValueSource {
	if source, ok := m.sources[key]; ok {
		return source
	}
	return SourceDefault
}

// Sources returns a copy of all recorded provenance.
func (m Metadata) Sources() map[string]ValueSource {
	out := make(map[string]ValueSource, len(m.sources))
	for k, v := range m.sources {
		out[k] = v
	}
	return out
}

// Keys returns non-default keys in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m.sources))
	for k, v := range m.sources {
		if v != SourceDefault {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// File is the config file that was read, empty when none.
func (m Metadata) File() string {
	return m.file
}

func (m Metadata) LoadedAt() time.Time {
	return m.loadedAt
}
