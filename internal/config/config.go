// Package config holds the engine configuration, persisted as JSON at
// ~/.braid/config.json.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DefaultMaxActiveSessions caps concurrently registered sessions.
const DefaultMaxActiveSessions = 10

// ModelConfig configures the streaming model endpoint.
type ModelConfig struct {
	BaseURL   string `json:"base_url,omitempty"`
	Model     string `json:"model,omitempty"`
	APIKeyEnv string `json:"api_key_env,omitempty"` // Env var holding the API key
}

// Config holds the engine configuration
type Config struct {
	Repos                []string    `json:"repos"`
	MaxActiveSessions    int         `json:"max_active_sessions,omitempty"`
	NotificationsEnabled bool        `json:"notifications_enabled,omitempty"` // Desktop notifications when background sessions complete
	Model                ModelConfig `json:"model,omitempty"`
	HistoryDBPath        string      `json:"history_db_path,omitempty"` // SQLite archive location, defaults to ~/.braid/history.db

	mu       sync.RWMutex
	filePath string
}

// configDir returns the path to the config directory
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".braid"), nil
}

// configPath returns the path to the config file
func configPath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or creates a new one if it doesn't exist
func Load() (*Config, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config from a specific path. Used by tests.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{
		Repos:    []string{},
		filePath: path,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.ensureInitialized()
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Ensure slices are initialized (not nil) after unmarshaling.
	// This must happen before Validate() since Validate() only reads.
	cfg.ensureInitialized()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ensureInitialized fills zero values after unmarshaling.
//
// Thread-safety: NOT thread-safe; only call during single-threaded
// initialization, before the Config is shared across goroutines.
func (c *Config) ensureInitialized() {
	if c.Repos == nil {
		c.Repos = []string{}
	}
	if c.MaxActiveSessions <= 0 {
		c.MaxActiveSessions = DefaultMaxActiveSessions
	}
}

// Validate checks that the config is internally consistent.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seenRepos := make(map[string]bool)
	for _, repo := range c.Repos {
		if repo == "" {
			return fmt.Errorf("empty repo path found")
		}
		if seenRepos[repo] {
			return fmt.Errorf("duplicate repo: %s", repo)
		}
		seenRepos[repo] = true
	}

	if c.MaxActiveSessions < 0 {
		return fmt.Errorf("max_active_sessions cannot be negative")
	}
	return nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(c.filePath, data, 0644)
}

// GetRepos returns a copy of the repos slice
func (c *Config) GetRepos() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	repos := make([]string, len(c.Repos))
	copy(repos, c.Repos)
	return repos
}

// AddRepo adds a repo path if not already present. Returns false if it was
// already registered.
func (c *Config) AddRepo(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range c.Repos {
		if r == path {
			return false
		}
	}
	c.Repos = append(c.Repos, path)
	return true
}

// RemoveRepo removes a repo path. Returns false if it wasn't registered.
func (c *Config) RemoveRepo(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, r := range c.Repos {
		if r == path {
			c.Repos = append(c.Repos[:i], c.Repos[i+1:]...)
			return true
		}
	}
	return false
}

// GetMaxActiveSessions returns the session limit.
func (c *Config) GetMaxActiveSessions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.MaxActiveSessions <= 0 {
		return DefaultMaxActiveSessions
	}
	return c.MaxActiveSessions
}

// GetNotificationsEnabled returns whether desktop notifications are on.
func (c *Config) GetNotificationsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.NotificationsEnabled
}

// SetNotificationsEnabled toggles desktop notifications.
func (c *Config) SetNotificationsEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.NotificationsEnabled = enabled
}

// GetModel returns a copy of the model configuration.
func (c *Config) GetModel() ModelConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Model
}

// GetHistoryDBPath returns the archive database path, defaulting to
// ~/.braid/history.db.
func (c *Config) GetHistoryDBPath() (string, error) {
	c.mu.RLock()
	path := c.HistoryDBPath
	c.mu.RUnlock()

	if path != "" {
		return path, nil
	}
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}
