package injector

import (
	"github.com/sharedock/sharedock/injector/internal/config"
)

// Config is the top-level injector configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// SelectorConfig names the docked-mount containers per UI mode.
type SelectorConfig = config.SelectorConfig

// TimingConfig holds the reaction-loop delays.
type TimingConfig = config.TimingConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return config.Default()
}
