// Package config provides configuration loading and management for the
// content governance service.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Store backend names.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendNATS   = "nats"
)

// Config represents the complete service configuration
type Config struct {
	Store     StoreConfig     `yaml:"store"`
	HTTP      HTTPConfig      `yaml:"http"`
	Analytics AnalyticsConfig `yaml:"analytics"`
}

// StoreConfig selects and configures the content item store backend
type StoreConfig struct {
	// Backend is one of "memory", "badger", "nats"
	Backend string `yaml:"backend"`
	// Path is the Badger database directory (badger backend only)
	Path string `yaml:"path"`
	// NATSURL is the NATS server URL (nats backend only)
	NATSURL string `yaml:"nats_url"`
}

// HTTPConfig configures the HTTP API
type HTTPConfig struct {
	// Listen is the listen address (default: ":8080")
	Listen string `yaml:"listen"`
	// DefaultActor is used when a request omits the actor field
	DefaultActor string `yaml:"default_actor"`
}

// AnalyticsConfig configures the analytics aggregator
type AnalyticsConfig struct {
	// BottleneckShare is the phase share above which a bottleneck is
	// flagged (0-1, default: 0.3)
	BottleneckShare float64 `yaml:"bottleneck_share"`
	// RecentLimit caps the recent-transitions list (default: 20)
	RecentLimit int `yaml:"recent_limit"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: BackendBadger,
			Path:    ".contentgov/items",
			NATSURL: "nats://localhost:4222",
		},
		HTTP: HTTPConfig{
			Listen:       ":8080",
			DefaultActor: "system",
		},
		Analytics: AnalyticsConfig{
			BottleneckShare: 0.3,
			RecentLimit:     20,
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendNATS:
	case BackendBadger:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the badger backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	if c.HTTP.Listen == "" {
		return fmt.Errorf("http.listen is required")
	}
	if c.Analytics.BottleneckShare < 0 || c.Analytics.BottleneckShare > 1 {
		return fmt.Errorf("analytics.bottleneck_share must be between 0 and 1")
	}
	if c.Analytics.RecentLimit < 0 {
		return fmt.Errorf("analytics.recent_limit must be non-negative")
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Store
	if other.Store.Backend != "" {
		c.Store.Backend = other.Store.Backend
	}
	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}
	if other.Store.NATSURL != "" {
		c.Store.NATSURL = other.Store.NATSURL
	}

	// HTTP
	if other.HTTP.Listen != "" {
		c.HTTP.Listen = other.HTTP.Listen
	}
	if other.HTTP.DefaultActor != "" {
		c.HTTP.DefaultActor = other.HTTP.DefaultActor
	}

	// Analytics
	if other.Analytics.BottleneckShare != 0 {
		c.Analytics.BottleneckShare = other.Analytics.BottleneckShare
	}
	if other.Analytics.RecentLimit != 0 {
		c.Analytics.RecentLimit = other.Analytics.RecentLimit
	}
}
