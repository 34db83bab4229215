package config

import (
	"time"
)

// DefaultConfig returns a default configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Version: "1.0",
		Server: ServerConfig{
			BaseURL:     "http://localhost:8787",
			TokenEnvVar: "RELAY_TOKEN",
			Timeout:     30 * time.Second,
			Retry: RetryConfig{
				Count: 2,
				Delay: 500 * time.Millisecond,
			},
			UserAgent: "coxswain/1.0",
		},

		Stream: StreamConfig{
			PingInterval: 15 * time.Second,
			AckTimeout:   12 * time.Second,
		},

		UI: UIConfig{
			Theme:           "auto",
			TimestampFormat: "15:04:05",
		},

		Export: ExportConfig{
			IncludeThoughts: false,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// MergeWithDefaults merges a partial configuration with defaults
func MergeWithDefaults(partial *Config) *Config {
	defaults := DefaultConfig()
	loader := &Loader{}
	return loader.mergeConfigs(defaults, partial)
}
