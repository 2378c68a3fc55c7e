package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/skretchpad/plugin-sandbox/internal/capability"
	"github.com/skretchpad/plugin-sandbox/internal/sandboxerr"
	"github.com/skretchpad/plugin-sandbox/internal/trust"
)

// FileName is the manifest file every plugin directory must contain.
const FileName = "plugin.toml"

// Loader discovers plugin directories under a root, parses their
// manifests, and caches them by id. Load is idempotent: calling it again
// on an already-loaded id replaces the cached entry, which is how reload
// is implemented.
type Loader struct {
	pluginsDir string
	roster     *trust.Roster
	logger     *zap.Logger

	mu    sync.RWMutex
	cache map[string]*Manifest
}

// NewLoader builds a Loader rooted at pluginsDir.
func NewLoader(pluginsDir string, roster *trust.Roster, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if roster == nil {
		roster = trust.DefaultRoster()
	}
	return &Loader{
		pluginsDir: pluginsDir,
		roster:     roster,
		logger:     logger,
		cache:      make(map[string]*Manifest),
	}
}

// Discover returns the ids of immediate subdirectories of the plugins
// root that contain a manifest file. Non-directories and subdirectories
// without a manifest are ignored.
func (l *Loader) Discover() ([]string, error) {
	entries, err := os.ReadDir(l.pluginsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading plugins dir: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		manifestPath := filepath.Join(l.pluginsDir, e.Name(), FileName)
		if _, err := os.Stat(manifestPath); err == nil {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// Load reads and parses id's manifest, projects its capabilities and
// assigns trust, and caches the result (replacing any prior entry).
func (l *Loader) Load(id string) (*Manifest, error) {
	pluginDir := filepath.Join(l.pluginsDir, id)
	manifestPath := filepath.Join(pluginDir, FileName)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &sandboxerr.ManifestNotFound{ID: id}
		}
		return nil, fmt.Errorf("reading manifest %s: %w", manifestPath, err)
	}

	var raw rawManifest
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, &sandboxerr.InvalidManifest{Reason: fmt.Sprintf("parsing %s: %v", manifestPath, err)}
	}
	applyDefaults(&raw)

	if raw.Name == "" || raw.Version == "" {
		return nil, &sandboxerr.InvalidManifest{Reason: "name and version are required"}
	}

	m := &Manifest{
		ID:           id,
		Name:         raw.Name,
		Version:      raw.Version,
		Description:  raw.Description,
		Author:       raw.Author,
		License:      raw.License,
		EntryPoint:   raw.EntryPoint,
		Dependencies: raw.Dependencies,
		Source:       raw.Source,
		Hooks:        raw.Hooks,
		Commands:     raw.Commands,
		Capabilities: projectCapabilities(raw.Capabilities),
	}

	declared := trust.ParseLevel(raw.Trust)
	m.Trust = trust.Classify(id, l.roster, declared, raw.Source)
	if m.Trust.AutoGrantPermissions() {
		m.Capabilities = capability.Merge(m.Capabilities, capability.FirstParty())
	}

	if raw.Signature != nil {
		sigBytes, err := decodeKeyBytes(raw.Signature.SignatureBytes, 64)
		if err != nil {
			return nil, &sandboxerr.InvalidManifest{Reason: fmt.Sprintf("signature: %v", err)}
		}
		sig := trust.Signature{
			PublicKey: raw.Signature.PublicKey,
			Bytes:     sigBytes,
			Timestamp: parseSignatureTimestamp(raw.Signature.Timestamp),
		}
		if err := trust.ValidateStructure(sig); err != nil {
			return nil, &sandboxerr.InvalidManifest{Reason: err.Error()}
		}
		m.Signature = &sig
	}

	l.mu.Lock()
	l.cache[id] = m
	l.mu.Unlock()

	l.logger.Debug("manifest loaded", zap.String("plugin_id", id), zap.String("trust", m.Trust.String()))
	return m, nil
}

// Get returns the cached manifest for id, if loaded.
func (l *Loader) Get(id string) (*Manifest, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.cache[id]
	return m, ok
}

// All returns a snapshot of every cached manifest, keyed by id.
func (l *Loader) All() map[string]*Manifest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]*Manifest, len(l.cache))
	for k, v := range l.cache {
		out[k] = v
	}
	return out
}

// Unload removes id from the cache. Reports whether it was present.
func (l *Loader) Unload(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.cache[id]; !ok {
		return false
	}
	delete(l.cache, id)
	return true
}

// PluginDir returns the on-disk directory for a plugin id.
func (l *Loader) PluginDir(id string) string {
	return filepath.Join(l.pluginsDir, id)
}

// VerifyDependencies requires every dependency declared by id's manifest
// to be loaded (present in the cache). It does not check activation
// state; the Manager layers that requirement on top.
func (l *Loader) VerifyDependencies(id string) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, ok := l.cache[id]
	if !ok {
		return &sandboxerr.PluginNotLoaded{ID: id}
	}
	for _, dep := range m.Dependencies {
		if _, ok := l.cache[dep]; !ok {
			return &sandboxerr.DependencyNotSatisfied{ID: dep}
		}
	}
	return nil
}
