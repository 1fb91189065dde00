package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main edgechat configuration
type Config struct {
	// HTTP server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Generation backend
	Model ModelConfig `json:"model" mapstructure:"model"`

	// Conversation core
	Chat ChatConfig `json:"chat" mapstructure:"chat"`

	// Session store
	Store StoreConfig `json:"store" mapstructure:"store"`

	// Retention sweeps
	Retention RetentionConfig `json:"retention" mapstructure:"retention"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// ModelConfig holds generation backend configuration
type ModelConfig struct {
	Provider        string `json:"provider" mapstructure:"provider"` // workersai, openai, anthropic
	Name            string `json:"name" mapstructure:"name"`
	MaxOutputTokens int    `json:"max_output_tokens" mapstructure:"max_output_tokens"`
	APIKey          string `json:"api_key" mapstructure:"api_key"`
	AccountID       string `json:"account_id" mapstructure:"account_id"` // workersai only
	BaseURL         string `json:"base_url" mapstructure:"base_url"`     // workersai only
}

// ChatConfig holds conversation core configuration
type ChatConfig struct {
	MaxTurns        int    `json:"max_turns" mapstructure:"max_turns"`
	SystemPrompt    string `json:"system_prompt" mapstructure:"system_prompt"`
	MissingIDPolicy string `json:"missing_id_policy" mapstructure:"missing_id_policy"` // shared, mint, reject
}

// StoreConfig holds session store configuration
type StoreConfig struct {
	Driver string `json:"driver" mapstructure:"driver"` // sqlite, file, memory
	Path   string `json:"path" mapstructure:"path"`

	// MaxStoredTurns truncates persisted transcripts to the trailing
	// turns on every save. Zero keeps stored history unbounded.
	MaxStoredTurns int `json:"max_stored_turns" mapstructure:"max_stored_turns"`
}

// RetentionConfig holds retention sweep configuration
type RetentionConfig struct {
	Enabled       bool          `json:"enabled" mapstructure:"enabled"`
	MaxAge        time.Duration `json:"max_age" mapstructure:"max_age"`
	SweepSchedule string        `json:"sweep_schedule" mapstructure:"sweep_schedule"` // cron expression
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
		},
		Model: ModelConfig{
			Provider:        "workersai",
			Name:            "@cf/meta/llama-3.1-8b-instruct",
			MaxOutputTokens: 256,
		},
		Chat: ChatConfig{
			MaxTurns:        10,
			MissingIDPolicy: "shared",
		},
		Store: StoreConfig{
			Driver:         "sqlite",
			MaxStoredTurns: 0,
		},
		Retention: RetentionConfig{
			Enabled:       false,
			MaxAge:        7 * 24 * time.Hour,
			SweepSchedule: "0 3 * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
		DataDir: "",
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Model.Provider {
	case "workersai":
		if c.Model.AccountID == "" {
			return fmt.Errorf("model: account_id is required for workersai")
		}
		if c.Model.APIKey == "" {
			return fmt.Errorf("model: api_key is required for workersai")
		}
	case "openai", "anthropic":
		if c.Model.APIKey == "" {
			return fmt.Errorf("model: api_key is required for %s", c.Model.Provider)
		}
	default:
		return fmt.Errorf("invalid model provider %s (must be: workersai, openai, anthropic)", c.Model.Provider)
	}

	if c.Model.Name == "" {
		return fmt.Errorf("model: name is required")
	}
	if c.Model.MaxOutputTokens <= 0 {
		return fmt.Errorf("model: max_output_tokens must be positive")
	}

	if c.Chat.MaxTurns <= 0 {
		return fmt.Errorf("chat: max_turns must be positive")
	}
	if p := c.Chat.MissingIDPolicy; p != "" && p != "shared" && p != "mint" && p != "reject" {
		return fmt.Errorf("chat: invalid missing_id_policy %s (must be: shared, mint, reject)", p)
	}

	switch c.Store.Driver {
	case "sqlite", "file", "memory":
	default:
		return fmt.Errorf("invalid store driver %s (must be: sqlite, file, memory)", c.Store.Driver)
	}
	if c.Store.MaxStoredTurns < 0 {
		return fmt.Errorf("store: max_stored_turns cannot be negative")
	}
	if c.Store.MaxStoredTurns > 0 && c.Store.MaxStoredTurns < c.Chat.MaxTurns {
		return fmt.Errorf("store: max_stored_turns must be at least chat.max_turns when set")
	}

	if c.Retention.Enabled && c.Retention.MaxAge <= 0 {
		return fmt.Errorf("retention: max_age must be positive when enabled")
	}

	return nil
}
