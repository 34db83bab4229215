package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/adrg/xdg"
)

// Loader handles loading and merging configurations from multiple sources
type Loader struct {
	precedence ConfigPrecedence
	validator  *Validator
}

// NewLoader creates a new configuration loader
func NewLoader(precedence ConfigPrecedence) *Loader {
	return &Loader{
		precedence: precedence,
		validator:  NewValidator(),
	}
}

// Load loads configuration from all sources and merges them
func (l *Loader) Load() (*Config, error) {
	// Start with default configuration
	config := DefaultConfig()

	// Load and merge configurations in order of precedence
	sources := []struct {
		path   string
		source ConfigSource
	}{
		{l.precedence.SystemConfig, SourceSystem},
		{l.precedence.UserConfig, SourceUser},
		{l.precedence.ProjectConfig, SourceProject},
		{l.precedence.LocalConfig, SourceLocal},
	}

	for _, src := range sources {
		if src.path == "" {
			continue
		}

		if cfg, err := l.loadFile(src.path); err == nil {
			config = l.mergeConfigs(config, cfg)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load %s config from %s: %w", src.source, src.path, err)
		}
	}

	// Apply environment variable overrides
	if l.precedence.EnvironmentPrefix != "" {
		l.applyEnvironmentOverrides(config)
	}

	// Validate the final configuration
	if err := l.validator.Validate(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// loadFile loads a single configuration file
func (l *Loader) loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return &config, nil
}

// SaveFile saves configuration to a file
func (l *Loader) SaveFile(config *Config, path string) error {
	// Validate before saving
	if err := l.validator.Validate(config); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// Marshal with pretty printing
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

// mergeConfigs merges two configurations with the second taking precedence
func (l *Loader) mergeConfigs(base, override *Config) *Config {
	result := *base

	if override.Version != "" {
		result.Version = override.Version
	}

	result.Server = l.mergeServer(result.Server, override.Server)
	result.Stream = l.mergeStream(result.Stream, override.Stream)
	result.UI = l.mergeUI(result.UI, override.UI)
	result.Export = l.mergeExport(result.Export, override.Export)
	result.Logging = l.mergeLogging(result.Logging, override.Logging)

	if override.Data.Directory != "" {
		result.Data.Directory = override.Data.Directory
	}

	return &result
}

// mergeServer merges relay server configurations
func (l *Loader) mergeServer(base, override ServerConfig) ServerConfig {
	result := base

	if override.BaseURL != "" {
		result.BaseURL = override.BaseURL
	}
	if override.Token != "" {
		result.Token = override.Token
	}
	if override.TokenEnvVar != "" {
		result.TokenEnvVar = override.TokenEnvVar
	}
	if override.Timeout != 0 {
		result.Timeout = override.Timeout
	}
	if override.Retry.Count != 0 {
		result.Retry.Count = override.Retry.Count
	}
	if override.Retry.Delay != 0 {
		result.Retry.Delay = override.Retry.Delay
	}
	if override.UserAgent != "" {
		result.UserAgent = override.UserAgent
	}

	return result
}

// mergeStream merges stream tuning configurations
func (l *Loader) mergeStream(base, override StreamConfig) StreamConfig {
	result := base

	if override.PingInterval != 0 {
		result.PingInterval = override.PingInterval
	}
	if override.AckTimeout != 0 {
		result.AckTimeout = override.AckTimeout
	}

	return result
}

// mergeUI merges UI preference configurations
func (l *Loader) mergeUI(base, override UIConfig) UIConfig {
	result := base

	if override.Theme != "" {
		result.Theme = override.Theme
	}
	if override.TimestampFormat != "" {
		result.TimestampFormat = override.TimestampFormat
	}
	if override.Plain {
		result.Plain = true
	}
	if override.NoColor {
		result.NoColor = true
	}
	if override.CompactMode {
		result.CompactMode = true
	}

	return result
}

// mergeExport merges export preference configurations
func (l *Loader) mergeExport(base, override ExportConfig) ExportConfig {
	result := base

	if override.Dir != "" {
		result.Dir = override.Dir
	}
	if override.IncludeThoughts {
		result.IncludeThoughts = true
	}

	return result
}

// mergeLogging merges logging configurations
func (l *Loader) mergeLogging(base, override LoggingConfig) LoggingConfig {
	result := base

	if override.Level != "" {
		result.Level = override.Level
	}
	if override.Format != "" {
		result.Format = override.Format
	}
	if override.File != "" {
		result.File = override.File
	}

	return result
}

// applyEnvironmentOverrides applies environment variable overrides to config
func (l *Loader) applyEnvironmentOverrides(config *Config) {
	prefix := l.precedence.EnvironmentPrefix

	// Check for token override
	if token := os.Getenv(prefix + "_TOKEN"); token != "" {
		config.Server.Token = token
	}
	// Also check the configured env var for compatibility
	if config.Server.Token == "" && config.Server.TokenEnvVar != "" {
		if token := os.Getenv(config.Server.TokenEnvVar); token != "" {
			config.Server.Token = token
		}
	}

	// Check for base URL override
	if baseURL := os.Getenv(prefix + "_BASE_URL"); baseURL != "" {
		config.Server.BaseURL = baseURL
	}

	// Check for timeout override
	if timeout := os.Getenv(prefix + "_TIMEOUT"); timeout != "" {
		if parsed, err := time.ParseDuration(timeout); err == nil {
			config.Server.Timeout = parsed
		}
	}

	// Check for theme override
	if theme := os.Getenv(prefix + "_THEME"); theme != "" {
		config.UI.Theme = theme
	}

	// Check for log level override
	if level := os.Getenv(prefix + "_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// GetConfigPaths returns the configuration file paths to check
func GetConfigPaths() ConfigPrecedence {
	// Use XDG paths for cross-platform compatibility
	userConfigPath := filepath.Join(xdg.ConfigHome, "coxswain", "config.json")

	// System config path varies by OS
	systemConfigPath := "/etc/coxswain/config.json"
	if runtime.GOOS == "windows" {
		systemConfigPath = filepath.Join(os.Getenv("PROGRAMDATA"), "coxswain", "config.json")
	}

	return ConfigPrecedence{
		SystemConfig:      systemConfigPath,
		UserConfig:        userConfigPath,
		ProjectConfig:     filepath.Join(".coxswain", "config.json"),
		LocalConfig:       filepath.Join(".coxswain", "config.local.json"),
		EnvironmentPrefix: "COXSWAIN",
	}
}

// FindConfigFile searches for a configuration file in standard locations
func FindConfigFile() (string, error) {
	paths := GetConfigPaths()

	// Check in order of precedence (reversed for finding)
	checkPaths := []string{
		paths.LocalConfig,
		paths.ProjectConfig,
		paths.UserConfig,
		paths.SystemConfig,
	}

	for _, path := range checkPaths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found")
}
