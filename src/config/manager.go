package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Manager manages configuration loading, validation, and access
type Manager struct {
	config     *Config
	loader     *Loader
	validator  *Validator
	configPath string
	mu         sync.RWMutex
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	precedence := GetConfigPaths()
	loader := NewLoader(precedence)

	// Load configuration
	config, err := loader.Load()
	if err != nil {
		// If no config found, use defaults
		if os.IsNotExist(err) {
			config = DefaultConfig()
		} else {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
	}

	// Find which config file was actually loaded
	configPath, _ := FindConfigFile()

	return &Manager{
		config:     config,
		loader:     loader,
		validator:  NewValidator(),
		configPath: configPath,
	}, nil
}

// NewManagerWithConfig creates a manager with a specific configuration
func NewManagerWithConfig(config *Config) (*Manager, error) {
	validator := NewValidator()
	if err := validator.Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Manager{
		config:    config,
		loader:    NewLoader(GetConfigPaths()),
		validator: validator,
	}, nil
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetServerConfig returns the relay server configuration
func (m *Manager) GetServerConfig() ServerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Server
}

// Reload reloads the configuration from disk
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	config, err := m.loader.Load()
	if err != nil {
		return fmt.Errorf("failed to reload configuration: %w", err)
	}

	m.config = config
	return nil
}

// Save saves the current configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.configPath == "" {
		return fmt.Errorf("no configuration file path set")
	}

	return m.loader.SaveFile(m.config, m.configPath)
}

// SaveTo saves the configuration to a specific path
func (m *Manager) SaveTo(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.loader.SaveFile(m.config, path)
}

// Update updates the configuration with new values
func (m *Manager) Update(updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Convert updates to JSON and back to apply to config
	updateJSON, err := json.Marshal(updates)
	if err != nil {
		return fmt.Errorf("failed to marshal updates: %w", err)
	}

	var partialConfig Config
	if err := json.Unmarshal(updateJSON, &partialConfig); err != nil {
		return fmt.Errorf("failed to unmarshal updates: %w", err)
	}

	// Merge with current config
	m.config = m.loader.mergeConfigs(m.config, &partialConfig)

	// Validate the new configuration
	if err := m.validator.Validate(m.config); err != nil {
		return fmt.Errorf("invalid configuration after update: %w", err)
	}

	return nil
}

// GetConfigPath returns the path of the loaded configuration file
func (m *Manager) GetConfigPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configPath
}

// SetConfigPath sets the configuration file path
func (m *Manager) SetConfigPath(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configPath = path
}

// Validate validates the current configuration
func (m *Manager) Validate() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.validator.Validate(m.config)
}

// Info provides information about the effective configuration setup
type Info struct {
	ActiveConfig string
	BaseURL      string
	TokenPresent bool
	Errors       []string
	Warnings     []string
}

// GetInfo returns configuration information for diagnostics
func (m *Manager) GetInfo() (*Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := &Info{
		ActiveConfig: m.configPath,
		BaseURL:      m.config.Server.BaseURL,
		TokenPresent: m.config.Server.Token != "",
		Errors:       []string{},
		Warnings:     []string{},
	}

	// Check for token resolution
	if m.config.Server.Token == "" && m.config.Server.TokenEnvVar != "" {
		if os.Getenv(m.config.Server.TokenEnvVar) == "" {
			info.Warnings = append(info.Warnings, fmt.Sprintf("token environment variable %s is not set", m.config.Server.TokenEnvVar))
		} else {
			info.TokenPresent = true
		}
	}

	// Validate configuration
	if err := m.validator.Validate(m.config); err != nil {
		info.Errors = append(info.Errors, fmt.Sprintf("configuration validation error: %v", err))
	}

	return info, nil
}
