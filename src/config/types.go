package config

import (
	"time"
)

// Config represents the complete configuration for coxswain
type Config struct {
	// Version of the configuration format
	Version string `json:"version"`

	// Server describes the relay server to talk to
	Server ServerConfig `json:"server"`

	// Stream tunes the push channel
	Stream StreamConfig `json:"stream,omitempty"`

	// UI preferences for rendered output
	UI UIConfig `json:"ui,omitempty"`

	// Export preferences for transcript export
	Export ExportConfig `json:"export,omitempty"`

	// Logging configuration
	Logging LoggingConfig `json:"logging,omitempty"`

	// Data directory configuration
	Data DataConfig `json:"data,omitempty"`
}

// ServerConfig holds relay server connection settings
type ServerConfig struct {
	// BaseURL of the relay REST surface, http(s) or ws(s)
	BaseURL string `json:"base_url,omitempty" validate:"omitempty,relay_url"`

	// Token for authentication (can be omitted if using env vars)
	Token string `json:"token,omitempty"`

	// TokenEnvVar specifies the environment variable to read the token from
	TokenEnvVar string `json:"token_env_var,omitempty"`

	// Timeout for REST requests
	Timeout time.Duration `json:"timeout,omitempty" validate:"min=0"`

	// Retry behavior for REST requests
	Retry RetryConfig `json:"retry,omitempty"`

	// UserAgent override for REST requests
	UserAgent string `json:"user_agent,omitempty"`
}

// RetryConfig defines retry behavior for REST requests
type RetryConfig struct {
	Count int           `json:"count" validate:"min=0,max=10"`
	Delay time.Duration `json:"delay" validate:"min=0"`
}

// StreamConfig tunes the push channel. Zero values fall back to the
// stream manager's defaults.
type StreamConfig struct {
	// PingInterval between app-level pings
	PingInterval time.Duration `json:"ping_interval,omitempty" validate:"min=0"`

	// AckTimeout is how long a send may go unacknowledged before the
	// connection is treated as dead
	AckTimeout time.Duration `json:"ack_timeout,omitempty" validate:"min=0"`
}

// UIConfig defines rendering preferences
type UIConfig struct {
	// Theme ("auto", "dark", "light")
	Theme string `json:"theme,omitempty" validate:"theme"`

	// Plain disables markdown rendering of agent text
	Plain bool `json:"plain"`

	// NoColor disables ANSI styling
	NoColor bool `json:"no_color"`

	// CompactMode reduces per-turn detail
	CompactMode bool `json:"compact_mode"`

	// TimestampFormat for rendered timestamps
	TimestampFormat string `json:"timestamp_format,omitempty"`
}

// ExportConfig defines transcript export preferences
type ExportConfig struct {
	// Dir is the default output directory
	Dir string `json:"dir,omitempty"`

	// IncludeThoughts exports reasoning and activity rows, not just
	// prompts and final answers
	IncludeThoughts bool `json:"include_thoughts"`
}

// LoggingConfig defines logging configuration
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string `json:"level,omitempty" validate:"log_level"`

	// Format is the output format (text, json)
	Format string `json:"format,omitempty" validate:"log_format"`

	// File overrides the log file path used in watch mode
	File string `json:"file,omitempty"`
}

// DataConfig defines data directory configuration
type DataConfig struct {
	// Directory overrides the state directory holding the preferences
	// database and log files
	Directory string `json:"directory,omitempty"`
}

// ConfigPrecedence defines the order of configuration loading
type ConfigPrecedence struct {
	// SystemConfig path
	SystemConfig string

	// UserConfig path
	UserConfig string

	// ProjectConfig path
	ProjectConfig string

	// LocalConfig path
	LocalConfig string

	// EnvironmentPrefix for env var overrides
	EnvironmentPrefix string
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ValidationError) Error() string {
	return e.Message
}

// ConfigSource indicates where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"
	SourceUser        ConfigSource = "user"
	SourceProject     ConfigSource = "project"
	SourceLocal       ConfigSource = "local"
	SourceEnvironment ConfigSource = "environment"
	SourceFlag        ConfigSource = "flag"
)
