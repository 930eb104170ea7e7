// Package config handles static configuration loading for promptlane.
package config

import (
	"time"
)

// Config is the root configuration structure. Runtime-tunable values (API
// key, per-priority thresholds) live in the settings store instead; this
// file covers everything fixed at process start.
type Config struct {
	// Server settings
	Server ServerConfig `yaml:"server" json:"server"`

	// Upstream LLM settings
	Upstream UpstreamConfig `yaml:"upstream" json:"upstream"`

	// Storage paths
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Addr is the listen address
	Addr string `yaml:"addr" json:"addr"`

	// StreamDelay is the pause between streamed words
	StreamDelay Duration `yaml:"stream_delay" json:"stream_delay"`
}

// UpstreamConfig contains LLM service settings
type UpstreamConfig struct {
	// Model is the upstream model name
	Model string `yaml:"model" json:"model"`

	// APIKey is the fallback key when the settings store has none
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// APIKeyEnv is the environment variable containing the fallback key
	APIKeyEnv string `yaml:"api_key_env,omitempty" json:"api_key_env,omitempty"`

	// RequestsPerMinute caps upstream calls; <= 0 disables throttling
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`

	// MaxConcurrentBatches bounds in-flight upstream calls
	MaxConcurrentBatches int `yaml:"max_concurrent_batches" json:"max_concurrent_batches"`
}

// StorageConfig contains on-disk layout settings
type StorageConfig struct {
	// DataDir holds the settings and chats files
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// LogDir holds the request/response trace logs
	LogDir string `yaml:"log_dir" json:"log_dir"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`

	// Format is the log format (text, json)
	Format string `yaml:"format" json:"format"`
}

// SettingsFile is the runtime settings file name inside DataDir.
const SettingsFile = "settings.json"

// ChatsFile is the chat history file name inside DataDir.
const ChatsFile = "chats.json"

// Duration is a wrapper around time.Duration for YAML unmarshaling
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	duration, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = duration
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        ":8000",
			StreamDelay: Duration{50 * time.Millisecond},
		},
		Upstream: UpstreamConfig{
			Model:                "gpt-4o-mini",
			APIKeyEnv:            "OPENAI_API_KEY",
			RequestsPerMinute:    0,
			MaxConcurrentBatches: 8,
		},
		Storage: StorageConfig{
			DataDir: "data",
			LogDir:  "logs",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
