package config

import (
	"path/filepath"

	"github.com/adrg/xdg"
)

// StoragePaths contains filesystem locations for local state
type StoragePaths struct {
	DatabasePath string
	LogDir       string
}

// DefaultStoragePaths returns storage paths derived from config, falling
// back to XDG base directories. XDG_STATE_HOME holds runtime state: the
// preferences database and watch-mode log files.
func DefaultStoragePaths(cfg *Config) StoragePaths {
	base := filepath.Join(xdg.StateHome, "coxswain")
	if cfg != nil && cfg.Data.Directory != "" {
		base = cfg.Data.Directory
	}

	return StoragePaths{
		DatabasePath: filepath.Join(base, "prefs.db"),
		LogDir:       filepath.Join(base, "logs"),
	}
}

// GetDefaultCachePath returns the default cache directory path
func GetDefaultCachePath() string {
	// Use XDG_CACHE_HOME for cached data
	return filepath.Join(xdg.CacheHome, "coxswain")
}

// GetDefaultExportPath returns the default transcript export directory
func GetDefaultExportPath() string {
	// Use XDG_DATA_HOME for user-facing exported files
	return filepath.Join(xdg.DataHome, "coxswain", "exports")
}
