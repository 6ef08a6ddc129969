package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.BaseURL != "http://localhost:8000" {
		t.Errorf("base url = %q", cfg.Server.BaseURL)
	}
	if !cfg.History.Enabled {
		t.Error("history should default to enabled")
	}
	if cfg.UI.Theme != "dark" {
		t.Errorf("theme = %q", cfg.UI.Theme)
	}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Errorf("timeout = %v", cfg.RequestTimeout())
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  base_url: https://chat.example.com
  timeout: 90s
  token: abc123
history:
  enabled: false
ui:
  theme: light
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.BaseURL != "https://chat.example.com" {
		t.Errorf("base url = %q", cfg.Server.BaseURL)
	}
	if cfg.RequestTimeout() != 90*time.Second {
		t.Errorf("timeout = %v", cfg.RequestTimeout())
	}
	if cfg.History.Enabled {
		t.Error("history should be disabled")
	}
	if cfg.UI.Theme != "light" {
		t.Errorf("theme = %q", cfg.UI.Theme)
	}
	if cfg.BearerToken() != "abc123" {
		t.Errorf("token = %q", cfg.BearerToken())
	}
}

func TestLoadGarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHATFRONT_SERVER_URL", "http://env.example:9000")
	t.Setenv("CHATFRONT_TOKEN", "env-token")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.BaseURL != "http://env.example:9000" {
		t.Errorf("base url = %q", cfg.Server.BaseURL)
	}
	if cfg.BearerToken() != "env-token" {
		t.Errorf("token = %q", cfg.BearerToken())
	}
}

func TestTokenFileWinsAndIsTrimmed(t *testing.T) {
	dir := t.TempDir()
	tokenPath := filepath.Join(dir, "token")
	if err := os.WriteFile(tokenPath, []byte("  file-token\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	cfg.Server.Token = "static"
	cfg.Server.TokenFile = tokenPath

	if got := cfg.BearerToken(); got != "file-token" {
		t.Errorf("token = %q, want trimmed file contents", got)
	}

	// A rotated token is picked up on the next read.
	if err := os.WriteFile(tokenPath, []byte("rotated\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := cfg.BearerToken(); got != "rotated" {
		t.Errorf("token = %q after rotation", got)
	}

	// An unreadable or empty file falls back to the static token.
	cfg.Server.TokenFile = filepath.Join(dir, "gone")
	if got := cfg.BearerToken(); got != "static" {
		t.Errorf("token = %q, want static fallback", got)
	}
}

func TestRequestTimeoutGarbage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Timeout = "soon"
	if got := cfg.RequestTimeout(); got != 30*time.Second {
		t.Errorf("timeout = %v, want fallback", got)
	}
	cfg.Server.Timeout = "-5s"
	if got := cfg.RequestTimeout(); got != 30*time.Second {
		t.Errorf("timeout = %v, want fallback on negative", got)
	}
}
