// Package config handles user configuration for sandboxctl/sandboxd.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/skretchpad/plugin-sandbox/internal/meta"
	"gopkg.in/yaml.v3"
)

// Config holds configuration loaded from ~/.sandboxcore/config.yaml.
type Config struct {
	// Output is the default output format (table, json, yaml, quiet).
	Output string `yaml:"output"`

	// Quiet suppresses all output except exit code.
	Quiet bool `yaml:"quiet"`

	// PluginsDir is the root directory the Manifest Loader discovers
	// plugin directories under.
	PluginsDir string `yaml:"plugins_dir"`

	// WorkspaceRoot is the editor's open workspace: the root that
	// workspace_read and workspace_read_write filesystem capabilities
	// are checked against.
	WorkspaceRoot string `yaml:"workspace_root"`

	// TrustedKeysPath points at the JSON array of hex/base64-encoded
	// Ed25519 public keys trusted to sign "verified" plugins.
	TrustedKeysPath string `yaml:"trusted_keys_path"`

	// AuditLogCapacity bounds the in-memory audit ring buffer.
	AuditLogCapacity int `yaml:"audit_log_capacity"`

	// Limits holds the per-sandbox resource limits sandboxd applies to
	// every plugin; manifests cannot change them.
	Limits LimitsConfig `yaml:"limits"`

	// NetworkAllowlist is a list of hostnames read from the config file.
	// No other package reads it: net.fetch checks only the plugin's own
	// network capability.
	NetworkAllowlist []string `yaml:"network_allowlist"`
}

// LimitsConfig mirrors sandbox.ResourceLimits in a YAML-friendly shape.
type LimitsConfig struct {
	// Timeout is a duration string, e.g. "5s".
	Timeout string `yaml:"timeout"`

	// RateLimitPerSecond bounds the Execute/CallHook calls into one
	// plugin's worker per second. Mediated operations a plugin makes
	// through the ops surface are not counted.
	RateLimitPerSecond int `yaml:"rate_limit_per_second"`

	// MemoryCapMB bounds the sampled heap size; a call that ends above it
	// returns a memory-limit error. The sandbox is not stopped.
	MemoryCapMB int `yaml:"memory_cap_mb"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Output:           "table",
		PluginsDir:       filepath.Join(DefaultConfigDir(), "plugins"),
		TrustedKeysPath:  filepath.Join(DefaultConfigDir(), "trusted_keys.json"),
		AuditLogCapacity: 10000,
		Limits: LimitsConfig{
			Timeout:            "5s",
			RateLimitPerSecond: 100,
			MemoryCapMB:        50,
		},
	}
}

// Load reads configuration from the given path.
// Returns DefaultConfig if the file doesn't exist.
// Returns an error only if the file exists but is malformed.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// DefaultConfigPath returns the default config file path.
// ~/.sandboxcore/config.yaml
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultConfigDir returns the default config directory.
// ~/.sandboxcore/
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "."+meta.AppName)
	}
	return filepath.Join(home, "."+meta.AppName)
}

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Environment variables (higher priority than config file):
//   - SANDBOXCORE_OUTPUT: default output format
//   - SANDBOXCORE_PLUGINS_DIR: plugin discovery root
//   - SANDBOXCORE_WORKSPACE_ROOT: editor workspace root
//   - SANDBOXCORE_RATE_LIMIT: default rate limit (ops/sec)
func (c *Config) ApplyEnvOverrides() {
	prefix := strings.ToUpper(meta.AppName) + "_"
	if v := os.Getenv(prefix + "OUTPUT"); v != "" {
		c.Output = v
	}
	if v := os.Getenv(prefix + "PLUGINS_DIR"); v != "" {
		c.PluginsDir = v
	}
	if v := os.Getenv(prefix + "WORKSPACE_ROOT"); v != "" {
		c.WorkspaceRoot = v
	}
	if v := os.Getenv(prefix + "RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Limits.RateLimitPerSecond = n
		}
	}
}

// Save writes the config to the given path as YAML.
// Creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}
