// Package sandboxregistry maps plugin ids to their live Sandbox handles.
package sandboxregistry

import (
	"context"
	"fmt"
	"sync"

	"github.com/skretchpad/plugin-sandbox/internal/sandbox"
)

// Registry is a thread-safe id -> *sandbox.Sandbox map.
type Registry struct {
	mu        sync.RWMutex
	sandboxes map[string]*sandbox.Sandbox
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{sandboxes: make(map[string]*sandbox.Sandbox)}
}

// Register adds sb under its own id. Returns an error if that id is
// already registered — callers must Remove first.
func (r *Registry) Register(sb *sandbox.Sandbox) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sandboxes[sb.ID]; exists {
		return fmt.Errorf("sandbox already registered: %s", sb.ID)
	}
	r.sandboxes[sb.ID] = sb
	return nil
}

// Get returns the sandbox for id, if any.
func (r *Registry) Get(id string) (*sandbox.Sandbox, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sb, ok := r.sandboxes[id]
	return sb, ok
}

// List returns every registered plugin id.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sandboxes))
	for id := range r.sandboxes {
		ids = append(ids, id)
	}
	return ids
}

// Remove unregisters and cleans up the sandbox for id, if present.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	sb, ok := r.sandboxes[id]
	if ok {
		delete(r.sandboxes, id)
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return sb.Cleanup(ctx)
}

// CloseAll cleans up and removes every registered sandbox.
func (r *Registry) CloseAll(ctx context.Context) error {
	r.mu.Lock()
	all := r.sandboxes
	r.sandboxes = make(map[string]*sandbox.Sandbox)
	r.mu.Unlock()

	var firstErr error
	for _, sb := range all {
		if err := sb.Cleanup(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
