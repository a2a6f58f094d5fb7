package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains definition-gateway configuration
type Config struct {
	Workspace WorkspaceConfig `yaml:"workspace"`
	Session   SessionConfig   `yaml:"session"`
	Cache     CacheConfig     `yaml:"cache"`
}

// WorkspaceConfig describes the watched project tree
type WorkspaceConfig struct {
	Root       string   `yaml:"root"`
	Extensions []string `yaml:"extensions"`
	DebounceMs int      `yaml:"debounce_ms,omitempty"`
}

// SessionConfig contains the external analysis process settings
type SessionConfig struct {
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args"`
	WorkingDir     string   `yaml:"working_dir,omitempty"`
	Prompt         string   `yaml:"prompt,omitempty"`
	StartTimeoutMs int      `yaml:"start_timeout_ms,omitempty"`
}

// CacheConfig contains read and wait budgets for the resolution cache
type CacheConfig struct {
	ReadBudgetMs   int `yaml:"read_budget_ms,omitempty"`
	WaitCeilingMs  int `yaml:"wait_ceiling_ms,omitempty"`
	PollIntervalMs int `yaml:"poll_interval_ms,omitempty"`
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GenerateDefaultConfig generates a default configuration file
func GenerateDefaultConfig(path string) error {
	return SaveConfig(GetDefaultConfig(), path)
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Session.Command == "" {
		return fmt.Errorf("session command is required")
	}
	if config.Workspace.Root == "" {
		return fmt.Errorf("workspace root is required")
	}
	if len(config.Workspace.Extensions) == 0 {
		return fmt.Errorf("at least one workspace extension is required")
	}
	if config.Cache.ReadBudgetMs < 0 || config.Cache.WaitCeilingMs < 0 || config.Cache.PollIntervalMs < 0 {
		return fmt.Errorf("cache budgets must be non-negative")
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".def-gateway", "config.yaml")
}

// GetDefaultConfig returns a configuration targeting a GHCi-style session
// in the current directory
func GetDefaultConfig() *Config {
	cwd, _ := os.Getwd()
	return &Config{
		Workspace: WorkspaceConfig{
			Root:       cwd,
			Extensions: []string{".hs", ".lhs"},
			DebounceMs: 200,
		},
		Session: SessionConfig{
			Command:        "ghci",
			Args:           []string{"-fno-code"},
			Prompt:         "*>",
			StartTimeoutMs: 60000,
		},
		Cache: CacheConfig{
			ReadBudgetMs:   50,
			WaitCeilingMs:  3000,
			PollIntervalMs: 50,
		},
	}
}

// ReadBudget returns the bounded-read budget as a duration
func (c *Config) ReadBudget() time.Duration {
	return millisOrDefault(c.Cache.ReadBudgetMs, 50*time.Millisecond)
}

// WaitCeiling returns the background wait ceiling as a duration
func (c *Config) WaitCeiling() time.Duration {
	return millisOrDefault(c.Cache.WaitCeilingMs, 3*time.Second)
}

// PollInterval returns the background poll tick as a duration
func (c *Config) PollInterval() time.Duration {
	return millisOrDefault(c.Cache.PollIntervalMs, 50*time.Millisecond)
}

// Debounce returns the watcher debounce window as a duration
func (c *Config) Debounce() time.Duration {
	return millisOrDefault(c.Workspace.DebounceMs, 200*time.Millisecond)
}

// StartTimeout returns the session startup timeout as a duration
func (c *Config) StartTimeout() time.Duration {
	return millisOrDefault(c.Session.StartTimeoutMs, time.Minute)
}

func millisOrDefault(ms int, def time.Duration) time.Duration {
	if ms <= 0 {
		return def
	}
	return time.Duration(ms) * time.Millisecond
}
