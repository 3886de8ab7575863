package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/balthild/rune/pkg/discovery"
	"github.com/balthild/rune/pkg/duration"
)

// Config holds the daemon configuration, merged from the optional YAML
// file and command line flags. Flags win.
type Config struct {
	// ConfigDir stores the identity, trust report, and device cache.
	ConfigDir string `yaml:"config_dir"`

	// Alias is the name announced to peers.
	Alias string `yaml:"alias"`

	// DeviceModel is the optional model string in announcements.
	DeviceModel string `yaml:"device_model"`

	// DeviceType is the advertised form factor.
	DeviceType string `yaml:"device_type"`

	// APIPort is the TCP port announced for the node's API.
	APIPort uint16 `yaml:"api_port"`

	// Protocol is the announced API scheme.
	Protocol string `yaml:"protocol"`

	// Announce enables the periodic announcement loop.
	Announce bool `yaml:"announce"`

	// MDNS enables DNS-SD advertising alongside UDP announcements.
	MDNS bool `yaml:"mdns"`

	// Group and Port override the announcement multicast endpoint.
	Group string `yaml:"group"`
	Port  int    `yaml:"port"`

	// PruneInterval is how often stale devices are evicted.
	PruneInterval duration.Duration `yaml:"prune_interval"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the daemon defaults.
func DefaultConfig() Config {
	return Config{
		ConfigDir:     defaultConfigDir(),
		Alias:         defaultAlias(),
		DeviceType:    string(discovery.DeviceTypeHeadless),
		APIPort:       7863,
		Protocol:      "https",
		Announce:      true,
		MDNS:          true,
		Group:         discovery.DefaultGroup,
		Port:          discovery.DefaultPort,
		PruneInterval: duration.Duration(time.Minute),
		LogLevel:      "info",
	}
}

// LoadConfigFile merges the YAML file at path into cfg.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	if c.Alias == "" {
		return fmt.Errorf("alias must not be empty")
	}
	if c.APIPort == 0 {
		return fmt.Errorf("api_port must not be zero")
	}
	switch c.Protocol {
	case "http", "https":
	default:
		return fmt.Errorf("protocol must be http or https, got %q", c.Protocol)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level: %s", c.LogLevel)
	}
	if err := c.PruneInterval.Validate(); err != nil {
		return fmt.Errorf("prune_interval: %w", err)
	}
	return nil
}

func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "rune")
	}
	return ".rune"
}

// defaultAlias is the hostname, or empty when it cannot be determined.
// An empty alias makes the daemon fall back to its certificate ID.
func defaultAlias() string {
	host, err := os.Hostname()
	if err != nil {
		return ""
	}
	return host
}
