// Package meta holds build-time identity for the sandboxctl/sandboxd
// binaries: the name used for config directories, environment variable
// prefixes, and version banners.
package meta

// AppName is used for the config directory (~/.sandboxcore) and
// environment variable prefix (SANDBOXCORE_*).
const AppName = "sandboxcore"

// Version is set at build time via ldflags, e.g.
// go build -ldflags "-X github.com/skretchpad/plugin-sandbox/internal/meta.Version=1.0.0"
var Version = "dev"

// Commit is set at build time via ldflags.
var Commit = "unknown"

// Name returns the application's display name.
func Name() string { return "Plugin Sandbox Core" }

// Description returns a one-line description for version banners.
func Description() string {
	return "Trust, capability, and sandboxing core for untrusted editor plugins"
}
