package workflow

import "time"

// Config bounds a Loop's retained state and its maintenance schedule.
type Config struct {
	// MaxStructuredMessages caps displayed messages kept in history.
	MaxStructuredMessages int `mapstructure:"max_structured_messages" yaml:"max_structured_messages"`
	// MaxEventHistory caps raw adapter events kept in history.
	MaxEventHistory int `mapstructure:"max_event_history" yaml:"max_event_history"`
	// CheckpointResetTurns is how many user turns accumulate before the
	// graph checkpoint of the thread is cleared.
	CheckpointResetTurns int `mapstructure:"checkpoint_reset_turns" yaml:"checkpoint_reset_turns"`
	// NewChatWarningTurns is the turn count after which every run emits a
	// new-chat notice.
	NewChatWarningTurns int `mapstructure:"new_chat_warning_turns" yaml:"new_chat_warning_turns"`
	// IdleTimeout aborts a run that produces no event for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	// LogToolCommands records a tool_command entry for every non hand-off
	// tool call an agent makes.
	LogToolCommands bool `mapstructure:"log_tool_commands" yaml:"log_tool_commands"`
}

func DefaultConfig() Config {
	return Config{
		MaxStructuredMessages: 20,
		MaxEventHistory:       50,
		CheckpointResetTurns:  30,
		NewChatWarningTurns:   40,
		IdleTimeout:           60 * time.Minute,
	}
}

// withDefaults fills non-positive fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxStructuredMessages <= 0 {
		c.MaxStructuredMessages = def.MaxStructuredMessages
	}
	if c.MaxEventHistory <= 0 {
		c.MaxEventHistory = def.MaxEventHistory
	}
	if c.CheckpointResetTurns <= 0 {
		c.CheckpointResetTurns = def.CheckpointResetTurns
	}
	if c.NewChatWarningTurns <= 0 {
		c.NewChatWarningTurns = def.NewChatWarningTurns
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	return c
}
