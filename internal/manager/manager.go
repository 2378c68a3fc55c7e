// Package manager implements the Plugin Manager: the orchestrator that
// drives plugins through discover → load → activate → deactivate →
// unload → reload, holds the lifecycle state machine, tracks event
// subscriptions, and enforces dependency order.
package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.starlark.net/starlark"
	"go.uber.org/zap"

	"github.com/skretchpad/plugin-sandbox/internal/capability"
	"github.com/skretchpad/plugin-sandbox/internal/manifest"
	"github.com/skretchpad/plugin-sandbox/internal/sandbox"
	"github.com/skretchpad/plugin-sandbox/internal/sandboxerr"
	"github.com/skretchpad/plugin-sandbox/internal/sandboxregistry"
	"github.com/skretchpad/plugin-sandbox/internal/trust"
	"github.com/skretchpad/plugin-sandbox/internal/worker"
)

// State is a plugin's position in the lifecycle state machine.
type State int

const (
	StateLoaded State = iota
	StateActivating
	StateActive
	StateDeactivating
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoaded:
		return "loaded"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateDeactivating:
		return "deactivating"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Transport emits lifecycle events to the UI process.
type Transport interface {
	Emit(event string, payload map[string]interface{})
}

// WorkerFactory builds a worker for a plugin id, wiring in the
// operations-surface bridge as the worker's Starlark builtins. Injected
// so manager does not need to import ops directly (Manager satisfies
// ops's EventRouter and HookInvoker interfaces, and the composition root
// wires the two together — the dependency only runs one way).
type WorkerFactory func(pluginID string) *worker.Worker

// Manager orchestrates plugin lifecycle transitions.
type Manager struct {
	loader        *manifest.Loader
	verifier      *trust.Verifier
	registry      *sandboxregistry.Registry
	workerFactory WorkerFactory
	transport     Transport
	logger        *zap.Logger
	limits        sandbox.ResourceLimits

	mu            sync.RWMutex
	states        map[string]State
	errors        map[string]error
	grants        map[string]capability.Capabilities
	subscriptions map[string]map[string]struct{} // event -> set of plugin ids
}

// Config bundles a Manager's collaborators.
type Config struct {
	Loader        *manifest.Loader
	Verifier      *trust.Verifier
	Registry      *sandboxregistry.Registry
	WorkerFactory WorkerFactory
	Transport     Transport
	Logger        *zap.Logger
	Limits        sandbox.ResourceLimits
}

// New builds a Manager from cfg.
func New(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		loader:        cfg.Loader,
		verifier:      cfg.Verifier,
		registry:      cfg.Registry,
		workerFactory: cfg.WorkerFactory,
		transport:     cfg.Transport,
		logger:        logger,
		limits:        cfg.Limits,
		states:        make(map[string]State),
		errors:        make(map[string]error),
		grants:        make(map[string]capability.Capabilities),
		subscriptions: make(map[string]map[string]struct{}),
	}
}

// Discover loads manifests for every plugin directory the Loader finds
// that isn't already tracked, leaving them in state "loaded".
func (m *Manager) Discover() error {
	ids, err := m.loader.Discover()
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := m.loader.Load(id); err != nil {
			m.logger.Warn("failed to load manifest", zap.String("plugin_id", id), zap.Error(err))
			continue
		}
		m.mu.Lock()
		if _, tracked := m.states[id]; !tracked {
			m.states[id] = StateLoaded
		}
		m.mu.Unlock()
	}
	return nil
}

// Plugins returns every known plugin id, in no particular order.
func (m *Manager) Plugins() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	return ids
}

// State returns the current lifecycle state for id.
func (m *Manager) State(id string) (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.states[id]
	return s, ok
}

// Capabilities returns the effective (manifest ∪ runtime-granted)
// capabilities for id. Implements ops.CapabilityLookup.
func (m *Manager) Capabilities(id string) (capability.Capabilities, bool) {
	man, ok := m.loader.Get(id)
	if !ok {
		return capability.Capabilities{}, false
	}
	m.mu.RLock()
	grant, hasGrant := m.grants[id]
	m.mu.RUnlock()
	if !hasGrant {
		return man.Capabilities, true
	}
	return capability.Merge(man.Capabilities, grant), true
}

// GrantCapability merges extra into id's runtime-granted capabilities.
// Grants only widen — the manifest's declaration is the floor.
func (m *Manager) GrantCapability(id string, extra capability.Capabilities) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.grants[id]
	if !ok {
		m.grants[id] = extra
		return
	}
	m.grants[id] = capability.Merge(current, extra)
}

func (m *Manager) setState(id string, s State) {
	m.mu.Lock()
	m.states[id] = s
	m.mu.Unlock()
}

func (m *Manager) setError(id string, err error) {
	m.mu.Lock()
	m.states[id] = StateError
	m.errors[id] = err
	m.mu.Unlock()
}

func (m *Manager) emit(event string, payload map[string]interface{}) {
	if m.transport == nil {
		return
	}
	m.transport.Emit(event, payload)
}

// detectCycle walks the dependency graph reachable from id using a
// visited set; returns the first id at which a cycle is detected.
func (m *Manager) detectCycle(id string, visiting map[string]bool) error {
	if visiting[id] {
		return &sandboxerr.CircularDependency{ID: id}
	}
	man, ok := m.loader.Get(id)
	if !ok {
		return &sandboxerr.PluginNotLoaded{ID: id}
	}
	visiting[id] = true
	for _, dep := range man.Dependencies {
		if err := m.detectCycle(dep, visiting); err != nil {
			return err
		}
	}
	delete(visiting, id)
	return nil
}

// Activate runs the activation algorithm from spec step 1-8.
func (m *Manager) Activate(ctx context.Context, id string) error {
	m.mu.Lock()
	state, ok := m.states[id]
	if !ok {
		m.mu.Unlock()
		return &sandboxerr.PluginNotLoaded{ID: id}
	}
	if state == StateActive {
		m.mu.Unlock()
		return &sandboxerr.PluginAlreadyActive{ID: id}
	}
	if state != StateLoaded {
		m.mu.Unlock()
		return fmt.Errorf("plugin %s is not in a loaded state (current: %s)", id, state)
	}
	m.mu.Unlock()

	man, ok := m.loader.Get(id)
	if !ok {
		return &sandboxerr.PluginNotLoaded{ID: id}
	}

	if man.Trust == trust.LevelVerified {
		if man.Signature == nil {
			m.setError(id, &sandboxerr.PermissionDenied{Operation: "activate", Capability: "signature"})
			return &sandboxerr.PermissionDenied{Operation: "activate", Capability: "signature"}
		}
		payload, err := trust.BuildSignaturePayload(
			filepath.Join(m.loader.PluginDir(id), manifest.FileName),
			filepath.Join(m.loader.PluginDir(id), man.EntryPoint),
			id, man.Name, man.Version, man.Source, man.Trust, man.Signature.Timestamp,
		)
		if err != nil || m.verifier == nil || !m.verifier.Verify(*man.Signature, payload) {
			sigErr := &sandboxerr.PermissionDenied{Operation: "activate", Capability: "signature"}
			m.setError(id, sigErr)
			return sigErr
		}
	}

	if err := m.loader.VerifyDependencies(id); err != nil {
		m.setError(id, err)
		return err
	}
	if err := m.detectCycle(id, map[string]bool{}); err != nil {
		m.setError(id, err)
		return err
	}
	for _, dep := range man.Dependencies {
		depState, ok := m.State(dep)
		if !ok || depState != StateActive {
			err := &sandboxerr.DependencyNotSatisfied{ID: dep}
			m.setError(id, err)
			return err
		}
	}

	m.setState(id, StateActivating)

	w := m.workerFactory(id)
	sb := sandbox.New(id, man.Capabilities, w, m.logger, sandbox.WithLimits(m.effectiveLimits()))
	if err := m.registry.Register(sb); err != nil {
		m.setError(id, err)
		return err
	}

	pluginDir, dirErr := filepath.EvalSymlinks(m.loader.PluginDir(id))
	entryPath, entryErr := filepath.EvalSymlinks(filepath.Join(m.loader.PluginDir(id), man.EntryPoint))
	if dirErr != nil || entryErr != nil || !underDir(entryPath, pluginDir) {
		activationErr := &sandboxerr.InvalidPath{Path: man.EntryPoint}
		m.failActivation(ctx, id, activationErr)
		return activationErr
	}

	code, err := os.ReadFile(entryPath)
	if err != nil {
		activationErr := &sandboxerr.InvalidManifest{Reason: "entry point unreadable: " + err.Error()}
		m.failActivation(ctx, id, activationErr)
		return activationErr
	}

	if _, err := sb.Execute(ctx, string(code)); err != nil {
		m.failActivation(ctx, id, err)
		return err
	}
	if _, err := sb.CallHook(ctx, "activate", starlark.Tuple{}); err != nil {
		m.failActivation(ctx, id, err)
		return err
	}

	m.setState(id, StateActive)
	m.emit("plugin:activated", map[string]interface{}{"plugin_id": id})
	return nil
}

func (m *Manager) effectiveLimits() sandbox.ResourceLimits {
	if (m.limits == sandbox.ResourceLimits{}) {
		return sandbox.DefaultResourceLimits()
	}
	return m.limits
}

func (m *Manager) failActivation(ctx context.Context, id string, activationErr error) {
	_ = m.registry.Remove(ctx, id)
	m.setError(id, activationErr)
}

func underDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !hasDotDotPrefix(rel)
}

func hasDotDotPrefix(rel string) bool {
	return len(rel) >= 2 && rel[0] == '.' && rel[1] == '.'
}

// Deactivate requires the plugin be active, purges its event
// subscriptions, runs a best-effort deactivate hook, tears down its
// sandbox, and returns it to "loaded".
func (m *Manager) Deactivate(ctx context.Context, id string) error {
	state, ok := m.State(id)
	if !ok || state != StateActive {
		return &sandboxerr.PluginNotActive{ID: id}
	}
	m.setState(id, StateDeactivating)

	m.purgeSubscriptions(id)

	if sb, ok := m.registry.Get(id); ok {
		if _, err := sb.CallHook(ctx, "deactivate", starlark.Tuple{}); err != nil {
			m.logger.Debug("deactivate hook failed", zap.String("plugin_id", id), zap.Error(err))
		}
	}
	if err := m.registry.Remove(ctx, id); err != nil {
		m.logger.Warn("sandbox teardown failed", zap.String("plugin_id", id), zap.Error(err))
	}

	m.setState(id, StateLoaded)
	m.emit("plugin:deactivated", map[string]interface{}{"plugin_id": id})
	return nil
}

// Reload deactivates (if active), re-reads the manifest, and
// reactivates.
func (m *Manager) Reload(ctx context.Context, id string) error {
	if state, ok := m.State(id); ok && state == StateActive {
		if err := m.Deactivate(ctx, id); err != nil {
			return err
		}
	}
	if _, err := m.loader.Load(id); err != nil {
		return err
	}
	m.setState(id, StateLoaded)
	return m.Activate(ctx, id)
}

// Unload deactivates (if active), drops the manifest, and forgets the
// plugin's state entirely.
func (m *Manager) Unload(ctx context.Context, id string) error {
	if state, ok := m.State(id); ok && state == StateActive {
		if err := m.Deactivate(ctx, id); err != nil {
			return err
		}
	}
	m.loader.Unload(id)

	m.mu.Lock()
	delete(m.states, id)
	delete(m.errors, id)
	delete(m.grants, id)
	m.mu.Unlock()
	return nil
}

// Subscribe registers pluginID's interest in event. Implements
// ops.EventRouter.
func (m *Manager) Subscribe(pluginID, event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.subscriptions[event]
	if !ok {
		set = make(map[string]struct{})
		m.subscriptions[event] = set
	}
	set[pluginID] = struct{}{}
}

func (m *Manager) purgeSubscriptions(pluginID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, set := range m.subscriptions {
		delete(set, pluginID)
	}
}

// Emit dispatches event to every subscriber by calling the subscriber's
// hook named after the event, with data as its one argument. Failures
// per subscriber are logged, not fatal to the dispatch. Implements
// ops.EventRouter.
func (m *Manager) Emit(emitterID, event string, data map[string]interface{}) {
	m.mu.RLock()
	set := m.subscriptions[event]
	subscribers := make([]string, 0, len(set))
	for id := range set {
		subscribers = append(subscribers, id)
	}
	m.mu.RUnlock()

	for _, id := range subscribers {
		sb, ok := m.registry.Get(id)
		if !ok {
			continue
		}
		args := starlark.Tuple{toStarlarkValue(data)}
		ctx, cancel := context.WithTimeout(context.Background(), m.effectiveLimits().Timeout)
		if _, err := sb.CallHook(ctx, event, args); err != nil {
			m.logger.Debug("event dispatch failed for subscriber",
				zap.String("plugin_id", id), zap.String("event", event), zap.Error(err))
		}
		cancel()
	}
}

// InvokeHook invokes hook on pluginID's own sandbox. Implements
// ops.HookInvoker.
func (m *Manager) InvokeHook(ctx context.Context, pluginID, hook string, args starlark.Tuple) (starlark.Value, error) {
	sb, ok := m.registry.Get(pluginID)
	if !ok {
		return nil, &sandboxerr.PluginNotActive{ID: pluginID}
	}
	return sb.CallHook(ctx, hook, args)
}

func toStarlarkValue(data map[string]interface{}) starlark.Value {
	dict := starlark.NewDict(len(data))
	for k, v := range data {
		var val starlark.Value
		switch vv := v.(type) {
		case string:
			val = starlark.String(vv)
		case int:
			val = starlark.MakeInt(vv)
		case bool:
			val = starlark.Bool(vv)
		default:
			val = starlark.None
		}
		_ = dict.SetKey(starlark.String(k), val)
	}
	return dict
}
