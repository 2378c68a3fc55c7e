package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Default(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Output != "table" {
		t.Errorf("expected default output 'table', got %q", cfg.Output)
	}
	if cfg.Limits.RateLimitPerSecond != 100 {
		t.Errorf("expected default rate limit 100, got %d", cfg.Limits.RateLimitPerSecond)
	}
	if cfg.AuditLogCapacity != 10000 {
		t.Errorf("expected default audit capacity 10000, got %d", cfg.AuditLogCapacity)
	}
}

func TestLoad_Valid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
output: json
plugins_dir: /opt/editor/plugins
workspace_root: /home/user/project
audit_log_capacity: 5000
limits:
  timeout: 10s
  rate_limit_per_second: 50
  memory_cap_mb: 128
network_allowlist:
  - api.example.com
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Output != "json" {
		t.Errorf("expected output 'json', got %q", cfg.Output)
	}
	if cfg.PluginsDir != "/opt/editor/plugins" {
		t.Errorf("expected custom plugins dir, got %q", cfg.PluginsDir)
	}
	if cfg.Limits.RateLimitPerSecond != 50 {
		t.Errorf("expected rate limit 50, got %d", cfg.Limits.RateLimitPerSecond)
	}
	if len(cfg.NetworkAllowlist) != 1 || cfg.NetworkAllowlist[0] != "api.example.com" {
		t.Errorf("expected network allowlist entry, got %v", cfg.NetworkAllowlist)
	}
}

func TestLoad_Malformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(path, []byte("{{invalid"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(path)
	if err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := DefaultConfig()

	t.Setenv("SANDBOXCORE_OUTPUT", "yaml")
	t.Setenv("SANDBOXCORE_RATE_LIMIT", "25")

	cfg.ApplyEnvOverrides()

	if cfg.Output != "yaml" {
		t.Errorf("expected output 'yaml' from env, got %q", cfg.Output)
	}
	if cfg.Limits.RateLimitPerSecond != 25 {
		t.Errorf("expected rate limit 25 from env, got %d", cfg.Limits.RateLimitPerSecond)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Output = "yaml"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Output != "yaml" {
		t.Errorf("expected saved output 'yaml', got %q", loaded.Output)
	}
}
