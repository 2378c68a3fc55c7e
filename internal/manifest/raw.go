package manifest

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/skretchpad/plugin-sandbox/internal/capability"
)

// rawManifest mirrors the on-disk TOML shape from SPEC_FULL.md §6. The
// permission sub-tables are deliberately untyped (map[string]interface{})
// because the filesystem/network/commands fields are each a small union
// of shapes (a bare string, a list, or a table) that TOML has no direct
// sum-type encoding for; projectCapabilities below interprets them.
type rawManifest struct {
	Name         string                 `toml:"name"`
	Version      string                 `toml:"version"`
	Description  string                 `toml:"description"`
	Author       string                 `toml:"author"`
	License      string                 `toml:"license"`
	EntryPoint   string                 `toml:"entry_point"`
	Dependencies []string               `toml:"dependencies"`
	Source       string                 `toml:"source"`
	Trust        string                 `toml:"trust"`
	Hooks        map[string]string      `toml:"hooks"`
	Commands     map[string]CommandSpec `toml:"commands"`
	Signature    *rawSignature          `toml:"signature"`
	Capabilities map[string]interface{} `toml:"capabilities"`
}

type rawSignature struct {
	PublicKey      string `toml:"public_key"`
	SignatureBytes string `toml:"signature_bytes"`
	Timestamp      int64  `toml:"timestamp"`
}

func decodeKeyBytes(s string, wantLen int) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "0x")
	if len(s) == hex.EncodedLen(wantLen) {
		if raw, err := hex.DecodeString(s); err == nil {
			return raw, nil
		}
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("neither valid hex nor base64: %w", err)
	}
	if len(raw) != wantLen {
		return nil, fmt.Errorf("decoded length %d, want %d", len(raw), wantLen)
	}
	return raw, nil
}

func defaultEntryPoint() string { return "main.star" }

func applyDefaults(r *rawManifest) {
	if r.EntryPoint == "" {
		r.EntryPoint = defaultEntryPoint()
	}
}

// projectCapabilities interprets the manifest's "capabilities" table per
// spec.md §6 into a capability.Capabilities value.
func projectCapabilities(raw map[string]interface{}) capability.Capabilities {
	c := capability.None()
	if raw == nil {
		return c
	}

	if fs, ok := raw["filesystem"]; ok {
		c.Filesystem = projectFilesystem(fs)
	}
	if net, ok := raw["network"]; ok {
		c.Network = projectNetwork(net)
	}
	if cmds, ok := raw["commands"]; ok {
		c.Commands = projectCommands(cmds)
	} else {
		c.Commands.RequireConfirmation = true
	}
	if ui, ok := raw["ui"]; ok {
		c.UI = projectUI(ui)
	}

	return c
}

func toStringSet(v interface{}) map[string]struct{} {
	out := map[string]struct{}{}
	list, ok := v.([]interface{})
	if !ok {
		return out
	}
	for _, item := range list {
		if s, ok := item.(string); ok {
			out[s] = struct{}{}
		}
	}
	return out
}

func projectFilesystem(v interface{}) capability.Filesystem {
	switch val := v.(type) {
	case string:
		switch val {
		case "None":
			return capability.Filesystem{Mode: capability.FilesystemNone}
		case "WorkspaceRead":
			return capability.Filesystem{Mode: capability.FilesystemWorkspaceRead}
		case "WorkspaceReadWrite":
			return capability.Filesystem{Mode: capability.FilesystemWorkspaceReadWrite}
		default:
			return capability.Filesystem{Mode: capability.FilesystemNone}
		}
	case []interface{}:
		// e.g. ["read", "write"]
		hasRead, hasWrite := false, false
		for _, item := range val {
			switch item {
			case "read":
				hasRead = true
			case "write":
				hasWrite = true
			}
		}
		switch {
		case hasWrite:
			return capability.Filesystem{Mode: capability.FilesystemWorkspaceReadWrite}
		case hasRead:
			return capability.Filesystem{Mode: capability.FilesystemWorkspaceRead}
		default:
			return capability.Filesystem{Mode: capability.FilesystemNone}
		}
	case map[string]interface{}:
		return capability.Filesystem{
			Mode:       capability.FilesystemScoped,
			ReadPaths:  toStringSet(val["read"]),
			WritePaths: toStringSet(val["write"]),
		}
	default:
		return capability.Filesystem{Mode: capability.FilesystemNone}
	}
}

func projectNetwork(v interface{}) capability.Network {
	switch val := v.(type) {
	case string:
		switch val {
		case "Unrestricted":
			return capability.Network{Mode: capability.NetworkUnrestricted}
		default:
			return capability.Network{Mode: capability.NetworkNone}
		}
	case map[string]interface{}:
		if t, _ := val["type"].(string); t == "DomainAllowlist" {
			return capability.Network{
				Mode:    capability.NetworkDomainAllowlist,
				Domains: toStringSet(val["domains"]),
			}
		}
		return capability.Network{Mode: capability.NetworkNone}
	default:
		return capability.Network{Mode: capability.NetworkNone}
	}
}

func projectCommands(v interface{}) capability.Commands {
	switch val := v.(type) {
	case []interface{}:
		return capability.Commands{
			Allowlist:           toStringSet(val),
			RequireConfirmation: true,
		}
	case map[string]interface{}:
		requireConfirmation := true
		if rc, ok := val["require_confirmation"].(bool); ok {
			requireConfirmation = rc
		}
		return capability.Commands{
			Allowlist:           toStringSet(val["allowlist"]),
			RequireConfirmation: requireConfirmation,
		}
	default:
		return capability.Commands{RequireConfirmation: true}
	}
}

func projectUI(v interface{}) capability.UI {
	m, ok := v.(map[string]interface{})
	if !ok {
		return capability.UI{}
	}
	get := func(key string) bool {
		b, _ := m[key].(bool)
		return b
	}
	return capability.UI{
		StatusBar:     get("status_bar"),
		Sidebar:       get("sidebar"),
		Notifications: get("notifications"),
		Webview:       get("webview"),
	}
}

func parseSignatureTimestamp(secs int64) time.Time {
	if secs == 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0).UTC()
}
