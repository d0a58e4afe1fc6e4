// Package hublog is the message hub's structured-logging setup: level
// parsing and a slog.Logger constructor shared by every subsystem
// constructor's nil-logger default and by cmd/msghubd's wiring. It is
// grounded on internal/config/logging.go's level-parsing convention
// (ParseLogLevel/LevelTrace/ReplaceLogLevelNames), lifted into its own
// package so the ambient logging setup isn't tangled with config file
// loading.
package hublog

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace is a custom log level below Debug for wire-level forensics.
const LevelTrace = slog.Level(-8)

// ParseLevel converts a string to a slog.Level. Supported values: trace,
// debug, info, warn, error (case-insensitive); empty defaults to info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
	}
}

// ReplaceLevelNames customizes the level name for Trace in log output; pass
// as slog.HandlerOptions.ReplaceAttr.
func ReplaceLevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// New builds the hub's standard text-handler logger at the given level,
// writing to stdout. Every cmd/msghubd logger (default, then
// reconfigured from config) is built this way.
func New(level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: ReplaceLevelNames,
	}))
}
