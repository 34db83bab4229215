package relayclient

import (
	"log/slog"
	"time"
)

// Config holds configuration for the relay API client.
type Config struct {
	BaseURL    string        // Base URL of the relay REST surface
	Token      string        // Bearer token
	Logger     *slog.Logger  // Logger for debugging
	Timeout    time.Duration // HTTP timeout
	RetryCount int           // Number of retries for failed requests
	RetryDelay time.Duration // Delay between retries
	UserAgent  string        // Optional User-Agent override
}
