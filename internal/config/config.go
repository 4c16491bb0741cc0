// Package config holds umux's configuration knobs, loaded once at process
// construction time rather than read ad hoc via environment variables deep
// in the engine (spec.md §9, "fold into an explicit config record passed to
// the constructor; read environment only at configuration time").
//
// Structure and loading style (YAML via gopkg.in/yaml.v3, tolerant of a
// missing file) is adapted from h2's internal/config/config.go.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine selects which terminal engine(s) a session runs, matching the
// "engine" knob in spec.md §6.
type Engine string

const (
	EnginePrimary       Engine = "primary"
	EnginePrimaryStrict Engine = "primary-strict"
	EngineFallbackOnly  Engine = "fallback-only"
)

// Config holds the defaults and knobs of spec.md §6's table.
type Config struct {
	// HistoryCapacity is the per-session FIFO line count. Default 10000.
	HistoryCapacity int `yaml:"history_capacity"`

	// DefaultShell is the program spawned when spawn receives an empty
	// command.
	DefaultShell string `yaml:"default_shell"`

	// LogDir enables the JSONL sink when non-empty.
	LogDir string `yaml:"log_dir"`

	// InputLogging toggles stream:"input" JSONL records. Default true.
	InputLogging bool `yaml:"input_logging"`

	// Engine selects the terminal engine mode.
	Engine Engine `yaml:"engine"`

	// TerminalQueryLogging records synthetic query replies into the JSONL
	// sink as well as the input history.
	TerminalQueryLogging bool `yaml:"terminal_query_logging"`

	// DefaultWaitTimeout is used for `timeout` at the boundary when a wait
	// request omits one; the boundary still enforces a timeout in all
	// cases (spec.md §4.6's "mandatory timeout").
	DefaultWaitTimeout time.Duration `yaml:"default_wait_timeout"`
}

// Default returns the configuration with spec.md §6's defaults applied.
func Default() Config {
	return Config{
		HistoryCapacity:      10000,
		DefaultShell:         defaultShellPath(),
		InputLogging:         true,
		Engine:               EnginePrimary,
		TerminalQueryLogging: false,
		DefaultWaitTimeout:   30 * time.Second,
	}
}

func defaultShellPath() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}

// Dir returns the umux configuration directory (~/.umux/).
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".umux")
	}
	return filepath.Join(home, ".umux")
}

// Load reads the umux config from ~/.umux/config.yaml, applying defaults for
// anything the file omits. If the file does not exist, it returns the
// defaults with no error.
func Load() (Config, error) {
	return LoadFrom(filepath.Join(Dir(), "config.yaml"))
}

// LoadFrom reads the umux config from the given path, applying defaults for
// anything the file omits. If the file does not exist, it returns the
// defaults with no error.
func LoadFrom(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, err
	}

	// Unmarshal onto an overlay so a key absent from the file doesn't zero
	// out the default for that field.
	var overlay rawOverlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return Config{}, err
	}
	overlay.applyTo(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// rawOverlay mirrors Config with pointer fields so we can distinguish "key
// present with zero value" from "key absent".
type rawOverlay struct {
	HistoryCapacity      *int    `yaml:"history_capacity"`
	DefaultShell         *string `yaml:"default_shell"`
	LogDir               *string `yaml:"log_dir"`
	InputLogging         *bool   `yaml:"input_logging"`
	Engine               *string `yaml:"engine"`
	TerminalQueryLogging *bool   `yaml:"terminal_query_logging"`
	DefaultWaitTimeout   *string `yaml:"default_wait_timeout"`
}

func (o rawOverlay) applyTo(cfg *Config) {
	if o.HistoryCapacity != nil {
		cfg.HistoryCapacity = *o.HistoryCapacity
	}
	if o.DefaultShell != nil {
		cfg.DefaultShell = *o.DefaultShell
	}
	if o.LogDir != nil {
		cfg.LogDir = *o.LogDir
	}
	if o.InputLogging != nil {
		cfg.InputLogging = *o.InputLogging
	}
	if o.Engine != nil {
		cfg.Engine = Engine(*o.Engine)
	}
	if o.TerminalQueryLogging != nil {
		cfg.TerminalQueryLogging = *o.TerminalQueryLogging
	}
	if o.DefaultWaitTimeout != nil {
		if d, err := time.ParseDuration(*o.DefaultWaitTimeout); err == nil {
			cfg.DefaultWaitTimeout = d
		}
	}
}

func (c Config) validate() error {
	if c.HistoryCapacity <= 0 {
		return fmt.Errorf("history_capacity must be positive, got %d", c.HistoryCapacity)
	}
	switch c.Engine {
	case EnginePrimary, EnginePrimaryStrict, EngineFallbackOnly:
	default:
		return fmt.Errorf("engine: invalid value %q", c.Engine)
	}
	if c.DefaultWaitTimeout <= 0 {
		return fmt.Errorf("default_wait_timeout must be positive, got %s", c.DefaultWaitTimeout)
	}
	return nil
}
