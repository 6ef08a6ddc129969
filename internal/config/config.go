// Package config loads chatfront configuration: a YAML file under the user
// config directory with environment overrides on top. Everything has a
// default, so a missing file is not an error.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all chatfront configuration.
type Config struct {
	// Server is the chat backend, e.g. "http://localhost:8000".
	Server ServerConfig `yaml:"server"`

	// History configures the local message cache.
	History HistoryConfig `yaml:"history"`

	// UI configures the interactive chat interface.
	UI UIConfig `yaml:"ui"`
}

// ServerConfig configures the backend connection.
type ServerConfig struct {
	BaseURL string `yaml:"base_url"`
	// Timeout applies to CRUD calls; streams are never deadlined.
	Timeout string `yaml:"timeout"`
	// Token is the bearer credential. TokenFile, when set, wins and is
	// re-read on every request so an external refresher can rotate it.
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
}

// HistoryConfig configures the local SQLite mirror.
type HistoryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	DatabasePath string `yaml:"database_path"`
}

// UIConfig configures the TUI.
type UIConfig struct {
	Theme string `yaml:"theme"` // dark, light
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: "http://localhost:8000",
			Timeout: "30s",
		},
		History: HistoryConfig{
			Enabled:      true,
			DatabasePath: filepath.Join(homeDir(), ".chatfront", "history.db"),
		},
		UI: UIConfig{
			Theme: "dark",
		},
	}
}

// DefaultPath is where Load looks when no --config flag is given.
func DefaultPath() string {
	return filepath.Join(homeDir(), ".chatfront", "config.yaml")
}

// Load reads the YAML config at path, falling back to defaults when the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CHATFRONT_SERVER_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := os.Getenv("CHATFRONT_TOKEN"); v != "" {
		c.Server.Token = v
	}
	if v := os.Getenv("CHATFRONT_TOKEN_FILE"); v != "" {
		c.Server.TokenFile = v
	}
	if v := os.Getenv("CHATFRONT_DB"); v != "" {
		c.History.DatabasePath = v
	}
}

// RequestTimeout parses Server.Timeout, falling back to 30s on garbage.
func (c *Config) RequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// BearerToken resolves the credential for one request. An empty result is
// fine: requests go out unauthenticated and the server's 401 is handled
// through the normal error flow.
func (c *Config) BearerToken() string {
	if c.Server.TokenFile != "" {
		data, err := os.ReadFile(c.Server.TokenFile)
		if err == nil {
			if tok := strings.TrimSpace(string(data)); tok != "" {
				return tok
			}
		}
	}
	return c.Server.Token
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
