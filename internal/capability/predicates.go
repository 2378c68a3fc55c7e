package capability

import "strings"

// CanRead reports whether path, already canonicalized by the caller, is
// readable under c given the canonicalized workspace root.
func (c Capabilities) CanRead(path, workspaceRoot string) bool {
	if c.Filesystem.Mode == FilesystemScoped {
		_, ok := c.Filesystem.ReadPaths[path]
		if ok {
			return true
		}
		return underAnyPrefix(path, c.Filesystem.ReadPaths)
	}
	switch c.Filesystem.Mode {
	case FilesystemWorkspaceRead, FilesystemWorkspaceReadWrite:
		return underPrefix(path, workspaceRoot)
	default:
		return false
	}
}

// HasReadCapability reports whether c grants any filesystem read access
// at all, independent of which path is being asked about. Used to
// distinguish "plugin has no read capability" (permission_denied) from
// "plugin has read capability but this path falls outside its scope"
// (path_not_allowed).
func (c Capabilities) HasReadCapability() bool {
	return c.Filesystem.Mode != FilesystemNone
}

// HasWriteCapability reports whether c grants any filesystem write
// access at all, independent of which path is being asked about.
func (c Capabilities) HasWriteCapability() bool {
	switch c.Filesystem.Mode {
	case FilesystemWorkspaceReadWrite:
		return true
	case FilesystemScoped:
		return len(c.Filesystem.WritePaths) > 0
	default:
		return false
	}
}

// CanWrite reports whether path, already canonicalized by the caller, is
// writable under c given the canonicalized workspace root.
func (c Capabilities) CanWrite(path, workspaceRoot string) bool {
	if c.Filesystem.Mode == FilesystemScoped {
		_, ok := c.Filesystem.WritePaths[path]
		if ok {
			return true
		}
		return underAnyPrefix(path, c.Filesystem.WritePaths)
	}
	switch c.Filesystem.Mode {
	case FilesystemWorkspaceReadWrite:
		return underPrefix(path, workspaceRoot)
	default:
		return false
	}
}

func underPrefix(path, root string) bool {
	if root == "" {
		return false
	}
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(pathSeparator))
}

func underAnyPrefix(path string, prefixes map[string]struct{}) bool {
	for p := range prefixes {
		if underPrefix(path, p) {
			return true
		}
	}
	return false
}

// NetworkCanAccess reports whether host (already parsed from a URL, not
// canonicalized — hosts are not paths) may be contacted under c.
func (c Capabilities) NetworkCanAccess(host string) bool {
	switch c.Network.Mode {
	case NetworkUnrestricted:
		return true
	case NetworkDomainAllowlist:
		_, ok := c.Network.Domains[host]
		return ok
	default:
		return false
	}
}

// CommandsCanExecute reports whether cmd may be run via cmd.exec under c.
func (c Capabilities) CommandsCanExecute(cmd string) bool {
	_, ok := c.Commands.Allowlist[cmd]
	return ok
}

// UIAllows reports whether the named UI surface is permitted under c. op
// is one of "status_bar", "sidebar", "notifications", "webview".
func (c Capabilities) UIAllows(op string) bool {
	switch op {
	case "status_bar":
		return c.UI.StatusBar
	case "sidebar":
		return c.UI.Sidebar
	case "notifications":
		return c.UI.Notifications
	case "webview":
		return c.UI.Webview
	default:
		return false
	}
}
