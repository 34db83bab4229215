package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lmittmann/tint"

	"github.com/quayside/coxswain/src/config"
)

// createWatchLogger creates a logger that doesn't interfere with the live
// view by writing to a file under the state directory instead of
// stdout/stderr
func createWatchLogger(cfg *config.Config, logLevel string) *slog.Logger {
	level := parseLogLevel(resolveLogLevel(logLevel, cfg))

	logFile := cfg.Logging.File
	if logFile == "" {
		logDir := config.DefaultStoragePaths(cfg).LogDir
		if err := os.MkdirAll(logDir, 0755); err != nil {
			// If we can't create log directory, use discard logger
			return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
				Level: slog.LevelError,
			}))
		}
		logFile = filepath.Join(logDir, "coxswain.log")
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		// If we can't open log file, use discard logger
		return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	}

	return slog.New(slog.NewJSONHandler(file, &slog.HandlerOptions{
		Level: level,
	}))
}

// createCLILogger creates a logger for CLI commands that can write to stderr
func createCLILogger(cfg *config.Config, logLevel string) *slog.Logger {
	level := parseLogLevel(resolveLogLevel(logLevel, cfg))

	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level: level,
	}))
}

// resolveLogLevel picks the flag value when given, the configured level
// otherwise
func resolveLogLevel(flagLevel string, cfg *config.Config) string {
	if flagLevel != "" {
		return flagLevel
	}
	if cfg != nil && cfg.Logging.Level != "" {
		return cfg.Logging.Level
	}
	return "warn"
}

// parseLogLevel converts string log level to slog.Level
func parseLogLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
