// Package config loads the daemon's on-disk YAML configuration, following
// the same parse-then-default pattern the kit uses for its workflow.yaml.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	taskerr "github.com/silver2dream/agentrun/internal/errors"
)

// Config is the daemon's top-level configuration.
type Config struct {
	// RunRoot is the directory under which every run subdirectory lives.
	RunRoot string `yaml:"run_root"`

	// AllowedRoots lists workspace path prefixes. It is parsed but not
	// applied: workspace admission uses each request's own allowed_roots.
	AllowedRoots []string `yaml:"allowed_roots"`

	// DangerousRoots lists extra paths to deny as workspaces. It is parsed
	// but not applied: workspace.Admit checks only its built-in deny-list.
	DangerousRoots []string `yaml:"dangerous_roots"`

	// PollInterval is how often the daemon scans RunRoot for new requests.
	PollInterval time.Duration `yaml:"poll_interval"`

	// Workers is the number of concurrent run slots.
	Workers int `yaml:"workers"`

	// DefaultTimeout is the fallback engine timeout returned by TimeoutFor.
	// The daemon does not call TimeoutFor: a request without a timeout gets
	// runstore.DefaultTimeoutMS.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// SummaryLimit is parsed and defaulted only; the runner truncates
	// result.json's summary at its fixed runner.SummaryLimit.
	SummaryLimit int `yaml:"summary_limit"`

	// EngineTimeouts overrides DefaultTimeout per engine name.
	EngineTimeouts map[string]time.Duration `yaml:"engine_timeouts"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		RunRoot:        ".agentrun/runs",
		PollInterval:   2 * time.Second,
		Workers:        4,
		DefaultTimeout: 30 * time.Minute,
		SummaryLimit:   4000,
		EngineTimeouts: map[string]time.Duration{},
	}
}

// Load reads and parses a YAML config file at path, filling in any zero
// fields from Defaults().
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, taskerr.Wrap(taskerr.RequestInvalid, fmt.Sprintf("read config %s", path), err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, taskerr.Wrap(taskerr.RequestInvalid, fmt.Sprintf("parse config %s", path), err)
	}

	if cfg.RunRoot == "" {
		cfg.RunRoot = Defaults().RunRoot
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = Defaults().PollInterval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = Defaults().Workers
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = Defaults().DefaultTimeout
	}
	if cfg.SummaryLimit <= 0 {
		cfg.SummaryLimit = Defaults().SummaryLimit
	}
	if cfg.EngineTimeouts == nil {
		cfg.EngineTimeouts = map[string]time.Duration{}
	}

	return cfg, nil
}

// TimeoutFor returns the configured timeout for engine, falling back to
// DefaultTimeout.
func (c Config) TimeoutFor(engine string) time.Duration {
	if d, ok := c.EngineTimeouts[engine]; ok && d > 0 {
		return d
	}
	return c.DefaultTimeout
}
