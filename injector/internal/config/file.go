// Package config handles injector configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level injector configuration.
type Config struct {
	Browser   BrowserConfig  `yaml:"browser"`
	Hosts     []string       `yaml:"hosts"`
	Selectors SelectorConfig `yaml:"selectors"`
	Timing    TimingConfig   `yaml:"timing"`

	SettingsDB string `yaml:"settings_db"`
	Listen     string `yaml:"listen"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	// Remote is the WebSocket URL of an already-running Chrome started with
	// --remote-debugging-port. Empty = launch a local Chrome.
	Remote string `yaml:"remote"`
	// Headless launches without a window. The injected control is meant to
	// be clicked by a person, so the default is headful.
	Headless bool `yaml:"headless"`
	// Stealth applies the stealth evasions when sharedock opens pages
	// itself (the -url path).
	Stealth bool `yaml:"stealth"`
}

// SelectorConfig names the docked-mount containers per UI mode.
type SelectorConfig struct {
	Lightning string `yaml:"lightning"`
	Classic   string `yaml:"classic"`
}

// TimingConfig holds the reaction-loop delays. The defaults are part of the
// behavioural contract and only overridden in tests.
type TimingConfig struct {
	// DockRetry is the single deferred retry after a docked mount point is
	// not yet present.
	DockRetry time.Duration `yaml:"dock_retry"`
	// PollInterval is the periodic fallback tick: within one interval the
	// page converges even if every mutation event was missed.
	PollInterval time.Duration `yaml:"poll_interval"`
	// SettleDelay absorbs an in-progress host re-render before reinserting
	// on a pure mutation signal.
	SettleDelay time.Duration `yaml:"settle_delay"`
	// ReinsertDelays re-run insertion after a navigation to absorb the
	// host's staggered re-rendering.
	ReinsertDelays []time.Duration `yaml:"reinsert_delays"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every zero field with its default.
func (c *Config) ApplyDefaults() {
	if len(c.Hosts) == 0 {
		c.Hosts = []string{
			".lightning.force.com",
			".my.salesforce.com",
			".salesforce.com",
			".visualforce.com",
			".force.com",
		}
	}
	if c.Selectors.Lightning == "" {
		c.Selectors.Lightning = "ul.oneActionsRibbon"
	}
	if c.Selectors.Classic == "" {
		c.Selectors.Classic = "td#topButtonRow"
	}
	if c.Timing.DockRetry <= 0 {
		c.Timing.DockRetry = 1500 * time.Millisecond
	}
	if c.Timing.PollInterval <= 0 {
		c.Timing.PollInterval = 2 * time.Second
	}
	if c.Timing.SettleDelay <= 0 {
		c.Timing.SettleDelay = 50 * time.Millisecond
	}
	if len(c.Timing.ReinsertDelays) == 0 {
		c.Timing.ReinsertDelays = []time.Duration{
			100 * time.Millisecond,
			500 * time.Millisecond,
			time.Second,
			2 * time.Second,
		}
	}
	if c.SettingsDB == "" {
		c.SettingsDB = "sharedock.db"
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8777"
	}
}
