// Package config loads the lowest-priority defaults for the kanban
// command: a YAML file under XDG_CONFIG_HOME (or ~/.config) read once at
// startup, overridden by environment variables, themselves overridden by
// flags (internal/cli resolves flag > env > this file). It generalizes
// the teacher's internal/config from a single Linear API key plus FUSE
// mount defaults to kanban-mcp's board path, log, watch, and card-read
// cache defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk default set, every field optional.
type Config struct {
	Board string      `yaml:"board"`
	Log   LogConfig   `yaml:"log"`
	Watch WatchConfig `yaml:"watch"`
	Cache CacheConfig `yaml:"cache"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type WatchConfig struct {
	Enabled bool `yaml:"enabled"`
}

// CacheConfig tunes the store's read-through card cache (internal/cache).
type CacheConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

func DefaultConfig() *Config {
	return &Config{
		Log:   LogConfig{Level: "info"},
		Watch: WatchConfig{Enabled: true},
		Cache: CacheConfig{TTL: 5 * time.Second, MaxEntries: 2000},
	}
}

// Load reads the config file using the real environment, falling back to
// DefaultConfig if none exists.
func Load() (*Config, error) {
	return LoadWithEnv(os.Getenv)
}

// LoadWithEnv loads configuration using the provided environment lookup
// function, so tests can supply isolated environment values.
func LoadWithEnv(getenv func(string) string) (*Config, error) {
	cfg := DefaultConfig()

	configPath := getConfigPathWithEnv(getenv)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %q: %w", configPath, err)
		}
	}

	return cfg, nil
}

func getConfigPathWithEnv(getenv func(string) string) string {
	if xdgConfig := getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "kanban-mcp", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "kanban-mcp", "config.yaml")
}
