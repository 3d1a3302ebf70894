// Package obslog provides the structured logging setup shared by the
// daemon, runner, supervisor and reconciler.
package obslog

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Field key constants so call sites don't hand-roll attribute names.
const (
	RunIDKey     = "run_id"
	SessionIDKey = "session_id"
	EngineKey    = "engine"
	ComponentKey = "component"
	DurationKey  = "duration_ms"
)

// Format selects the slog handler backing a Logger.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Config controls logger construction.
type Config struct {
	Level     slog.Level
	Format    Format
	Output    io.Writer
	AddSource bool
}

// DefaultConfig returns a text logger at Info level writing to stderr.
func DefaultConfig() Config {
	return Config{
		Level:  slog.LevelInfo,
		Format: FormatText,
		Output: os.Stderr,
	}
}

// FromEnv builds a Config from AGENTRUN_LOG_LEVEL / AGENTRUN_LOG_FORMAT /
// AGENTRUN_LOG_SOURCE, falling back to DefaultConfig for anything unset.
func FromEnv() Config {
	cfg := DefaultConfig()

	if lvl := os.Getenv("AGENTRUN_LOG_LEVEL"); lvl != "" {
		cfg.Level = parseLevel(lvl)
	}
	if f := strings.ToLower(os.Getenv("AGENTRUN_LOG_FORMAT")); f == "json" {
		cfg.Format = FormatJSON
	}
	if os.Getenv("AGENTRUN_LOG_SOURCE") == "1" {
		cfg.AddSource = true
	}
	return cfg
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a *slog.Logger from cfg.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler)
}

// WithRun returns a logger scoped to a run and optional session.
func WithRun(l *slog.Logger, runID, sessionID string) *slog.Logger {
	if sessionID == "" {
		return l.With(RunIDKey, runID)
	}
	return l.With(RunIDKey, runID, SessionIDKey, sessionID)
}

// WithComponent returns a logger tagged with the emitting component name
// (e.g. "daemon", "runner", "reconciler", "supervisor").
func WithComponent(l *slog.Logger, component string) *slog.Logger {
	return l.With(ComponentKey, component)
}
