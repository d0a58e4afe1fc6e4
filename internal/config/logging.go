package config

import (
	"log/slog"

	"github.com/nugget/msghub/internal/hublog"
)

// LevelTrace re-exports hublog.LevelTrace so config.Validate can check
// against it without every caller needing to import hublog directly.
const LevelTrace = hublog.LevelTrace

// ParseLogLevel converts a string to a slog.Level.
// Supported values: trace, debug, info, warn, error (case-insensitive).
// Delegates to internal/hublog, which owns the hub's logging setup.
func ParseLogLevel(s string) (slog.Level, error) {
	return hublog.ParseLevel(s)
}

// ReplaceLogLevelNames customizes the level name for Trace in log output.
func ReplaceLogLevelNames(groups []string, a slog.Attr) slog.Attr {
	return hublog.ReplaceLevelNames(groups, a)
}
