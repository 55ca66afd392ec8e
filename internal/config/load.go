package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"redswarm/internal/graph/langgraph"
	"redswarm/internal/observability"
	"redswarm/internal/workflow"
)

type loadOptions struct {
	configFile  string
	searchPaths []string
	overrides   map[string]any
	envLookup   func(string) (string, bool)
}

type Option func(*loadOptions)

// WithConfigFile reads exactly path. A missing file is an error.
func WithConfigFile(path string) Option {
	return func(o *loadOptions) {
		o.configFile = strings.TrimSpace(path)
	}
}

// WithSearchPaths replaces the directories searched for redswarm.yaml.
func WithSearchPaths(paths ...string) Option {
	return func(o *loadOptions) {
		o.searchPaths = paths
	}
}

// WithOverrides applies values above every other layer, keyed by dotted
// path such as "server.port".
func WithOverrides(overrides map[string]any) Option {
	return func(o *loadOptions) {
		if o.overrides == nil {
			o.overrides = map[string]any{}
		}
		for k, v := range overrides {
			o.overrides[strings.ToLower(k)] = v
		}
	}
}

// WithEnvLookup replaces os.LookupEnv for provenance detection.
func WithEnvLookup(lookup func(string) (string, bool)) Option {
	return func(o *loadOptions) {
		if lookup != nil {
			o.envLookup = lookup
		}
	}
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:8501"},
			ShutdownTimeout: 10 * time.Second,
		},
		Graph: GraphConfig{
			Config: langgraph.Config{
				BaseURL:        DefaultGraphURL,
				AssistantID:    langgraph.DefaultAssistantID,
				RequestTimeout: 30 * time.Second,
			},
			RecursionLimit: DefaultRecursionLimit,
		},
		Workflow:      workflow.DefaultConfig(),
		Terminal:      TerminalConfig{MaxLines: 200},
		SessionLog:    SessionLogConfig{Dir: "logs", ListLimit: 20, CacheSize: 128},
		Model:         ModelConfig{Name: DefaultModel},
		Observability: observability.DefaultConfig(),
	}
}

// Load layers defaults, the config file, REDSWARM_* environment variables
// and explicit overrides, in that order of increasing precedence.
func Load(opts ...Option) (Config, Metadata, error) {
	options := loadOptions{envLookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&options)
	}
	if options.configFile == "" {
		if path, ok := options.envLookup(EnvPrefix + "_CONFIG"); ok {
			options.configFile = strings.TrimSpace(path)
		}
	}

	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	meta := Metadata{sources: map[string]ValueSource{}, loadedAt: time.Now()}

	if err := readConfigFile(v, options); err != nil {
		return Config{}, Metadata{}, err
	}
	meta.file = v.ConfigFileUsed()

	for key, value := range options.overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, Metadata{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.SessionLog.Dir = expandHome(cfg.SessionLog.Dir)
	cfg.Agents.ProfilesFile = expandHome(cfg.Agents.ProfilesFile)

	for _, key := range v.AllKeys() {
		meta.sources[key] = sourceOf(v, key, options)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, Metadata{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, meta, nil
}

func readConfigFile(v *viper.Viper, options loadOptions) error {
	if options.configFile != "" {
		v.SetConfigFile(expandHome(options.configFile))
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", options.configFile, err)
		}
		return nil
	}

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	paths := options.searchPaths
	if paths == nil {
		paths = []string{".", "$HOME/.redswarm"}
	}
	for _, path := range paths {
		v.AddConfigPath(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func sourceOf(v *viper.Viper, key string, options loadOptions) ValueSource {
	if _, ok := options.overrides[key]; ok {
		return SourceOverride
	}
	if _, ok := options.envLookup(EnvName(key)); ok {
		return SourceEnv
	}
	if v.InConfig(key) {
		return SourceFile
	}
	return SourceDefault
}

// EnvName is the environment variable bound to a dotted key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// setDefaults registers every leaf of cfg so AutomaticEnv can bind it.
func setDefaults(v *viper.Viper, cfg Config) {
	defaults := map[string]any{
		"server.host":             cfg.Server.Host,
		"server.port":             cfg.Server.Port,
		"server.cors_origins":     cfg.Server.CORSOrigins,
		"server.shutdown_timeout": cfg.Server.ShutdownTimeout,

		"graph.base_url":        cfg.Graph.BaseURL,
		"graph.assistant_id":    cfg.Graph.AssistantID,
		"graph.api_key":         cfg.Graph.APIKey,
		"graph.headers":         map[string]string{},
		"graph.request_timeout": cfg.Graph.RequestTimeout,
		"graph.recursion_limit": cfg.Graph.RecursionLimit,

		"workflow.max_structured_messages": cfg.Workflow.MaxStructuredMessages,
		"workflow.max_event_history":       cfg.Workflow.MaxEventHistory,
		"workflow.checkpoint_reset_turns":  cfg.Workflow.CheckpointResetTurns,
		"workflow.new_chat_warning_turns":  cfg.Workflow.NewChatWarningTurns,
		"workflow.idle_timeout":            cfg.Workflow.IdleTimeout,
		"workflow.log_tool_commands":       cfg.Workflow.LogToolCommands,

		"terminal.max_lines": cfg.Terminal.MaxLines,

		"sessionlog.dir":        cfg.SessionLog.Dir,
		"sessionlog.list_limit": cfg.SessionLog.ListLimit,
		"sessionlog.cache_size": cfg.SessionLog.CacheSize,

		"agents.profiles_file": cfg.Agents.ProfilesFile,

		"model.name":         cfg.Model.Name,
		"model.display_name": cfg.Model.DisplayName,

		"observability.logging.level":           cfg.Observability.Logging.Level,
		"observability.logging.format":          cfg.Observability.Logging.Format,
		"observability.metrics.enabled":         cfg.Observability.Metrics.Enabled,
		"observability.tracing.enabled":         cfg.Observability.Tracing.Enabled,
		"observability.tracing.exporter":        cfg.Observability.Tracing.Exporter,
		"observability.tracing.otlp_endpoint":   cfg.Observability.Tracing.OTLPEndpoint,
		"observability.tracing.zipkin_endpoint": cfg.Observability.Tracing.ZipkinEndpoint,
		"observability.tracing.sample_rate":     cfg.Observability.Tracing.SampleRate,
		"observability.tracing.service_name":    cfg.Observability.Tracing.ServiceName,
		"observability.tracing.service_version": cfg.Observability.Tracing.ServiceVersion,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
