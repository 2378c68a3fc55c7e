// Package manifest discovers plugin directories, parses their manifest
// files, projects the declarative permission and UI sections into the
// capability model, and assigns each plugin a trust level.
package manifest

import (
	"time"

	"github.com/skretchpad/plugin-sandbox/internal/capability"
	"github.com/skretchpad/plugin-sandbox/internal/trust"
)

// CommandSpec describes one command a plugin contributes to the editor's
// command palette.
type CommandSpec struct {
	Label    string `toml:"label"`
	Key      string `toml:"key"`
	Category string `toml:"category"`
}

// Manifest is the parsed, capability-projected form of a plugin.toml
// file. It is replaced atomically on reload.
type Manifest struct {
	ID           string
	Name         string            `toml:"name"`
	Version      string            `toml:"version"`
	Description  string            `toml:"description"`
	Author       string            `toml:"author"`
	License      string            `toml:"license"`
	EntryPoint   string            `toml:"entry_point"`
	Dependencies []string          `toml:"dependencies"`
	Source       string            `toml:"source"`
	Hooks        map[string]string `toml:"hooks"`
	Commands     map[string]CommandSpec `toml:"commands"`

	Capabilities capability.Capabilities
	Trust        trust.Level
	Signature    *trust.Signature

	LoadedAt time.Time
}
