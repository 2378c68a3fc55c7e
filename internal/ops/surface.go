// Package ops implements the mediated operations surface: the closed set
// of host primitives plugin scripts may invoke (fs.*, net.fetch,
// cmd.exec, ui.*, editor.*, event.*, hook.invoke). Every call
// canonicalizes its arguments, checks the caller's capabilities, runs
// the primitive, and records an audit event.
package ops

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.starlark.net/starlark"
	"go.uber.org/zap"

	"github.com/skretchpad/plugin-sandbox/internal/audit"
	"github.com/skretchpad/plugin-sandbox/internal/capability"
	"github.com/skretchpad/plugin-sandbox/internal/sandbox"
	"github.com/skretchpad/plugin-sandbox/internal/sandboxerr"
)

// EditorRequestTimeout bounds an editor.* round trip to the UI process.
const EditorRequestTimeout = 5 * time.Second

// CapabilityLookup resolves a plugin id to its current capabilities.
// Returns ok=false for an unknown plugin id.
type CapabilityLookup func(pluginID string) (capability.Capabilities, bool)

// Transport carries lifecycle and request/response events to the UI
// process. Await blocks for the next event named responseEvent or until
// ctx expires.
type Transport interface {
	Emit(event string, payload map[string]interface{})
	Await(ctx context.Context, responseEvent string) (map[string]interface{}, error)
}

// FileWatcher is the shared recursive filesystem watcher the Hot-Reload
// Watcher owns; the operations surface asks it to add/remove roots
// rather than owning a second fsnotify.Watcher per Open Question #1.
type FileWatcher interface {
	AddWatch(path string) error
	RemoveWatch(path string) error
}

// EventRouter holds the event subscription table (owned by the Plugin
// Manager) so event.subscribe/event.emit operate on the single
// authoritative table instead of a duplicate one inside ops.
type EventRouter interface {
	Subscribe(pluginID, event string)
	Emit(emitterID, event string, data map[string]interface{})
}

// HookInvoker invokes a named hook against a plugin's live sandbox.
type HookInvoker interface {
	InvokeHook(ctx context.Context, pluginID, hook string, args starlark.Tuple) (starlark.Value, error)
}

// FileEvent is relayed to a plugin's fs.watch channel.
type FileEvent struct {
	Kind  string
	Paths []string
}

// Surface is the mediated operations surface. One Surface instance
// serves every active plugin.
type Surface struct {
	WorkspaceRoot string

	capabilities CapabilityLookup
	auditLog     *audit.Log
	transport    Transport
	watcher      FileWatcher
	events       EventRouter
	hooks        HookInvoker
	confirm      sandbox.ConfirmFunc
	httpClient   *http.Client
	logger       *zap.Logger

	watches *watchTable
}

// Config bundles a Surface's collaborators.
type Config struct {
	WorkspaceRoot string
	Capabilities  CapabilityLookup
	Audit         *audit.Log
	Transport     Transport
	Watcher       FileWatcher
	Events        EventRouter
	Hooks         HookInvoker
	Confirm       sandbox.ConfirmFunc
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// New builds a Surface from cfg, filling in defaults for optional
// collaborators.
func New(cfg Config) *Surface {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	confirm := cfg.Confirm
	if confirm == nil {
		confirm = sandbox.DenyConfirm
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: EditorRequestTimeout}
	}
	return &Surface{
		WorkspaceRoot: cfg.WorkspaceRoot,
		capabilities:  cfg.Capabilities,
		auditLog:      cfg.Audit,
		transport:     cfg.Transport,
		watcher:       cfg.Watcher,
		events:        cfg.Events,
		hooks:         cfg.Hooks,
		confirm:       confirm,
		httpClient:    client,
		logger:        logger,
		watches:       newWatchTable(),
	}
}

func (s *Surface) lookup(pluginID string) (capability.Capabilities, error) {
	if s.capabilities == nil {
		return capability.Capabilities{}, &sandboxerr.PluginNotFound{ID: pluginID}
	}
	caps, ok := s.capabilities(pluginID)
	if !ok {
		return capability.Capabilities{}, &sandboxerr.PluginNotFound{ID: pluginID}
	}
	return caps, nil
}

func (s *Surface) audit(pluginID, operation, detail string, allowed bool, err error) {
	if s.auditLog == nil {
		return
	}
	s.auditLog.Append(pluginID, operation, detail, allowed, err)
}

func (s *Surface) emitLifecycle(event string, payload map[string]interface{}) {
	if s.transport == nil {
		return
	}
	s.transport.Emit(event, payload)
}

func newRequestID() string { return uuid.NewString() }
