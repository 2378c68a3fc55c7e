// Package sandbox wraps a worker.Worker with the resource envelope every
// host call into the worker (Execute, CallHook) runs inside: a per-call
// wall-clock timeout, a one-second rate limit, and a post-call
// memory-cap check. Mediated operations a plugin makes through the ops
// surface do not pass through this envelope and are not rate-limited.
package sandbox

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.starlark.net/starlark"
	"go.uber.org/zap"

	"github.com/skretchpad/plugin-sandbox/internal/capability"
	"github.com/skretchpad/plugin-sandbox/internal/sandboxerr"
	"github.com/skretchpad/plugin-sandbox/internal/worker"
)

// ResourceLimits bounds a single plugin's resource consumption.
type ResourceLimits struct {
	MaxMemory     uint64
	Timeout       time.Duration
	MaxOperations uint64
}

// DefaultResourceLimits matches the limits every sandbox is created with
// unless a WithLimits option overrides them: 50MiB, 5s, 100 ops/sec.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MaxMemory:     50 * 1024 * 1024,
		Timeout:       5 * time.Second,
		MaxOperations: 100,
	}
}

// ConfirmFunc asks the host UI to confirm a command invocation gated by
// Commands.RequireConfirmation. It is consulted synchronously by the
// operations surface, which receives it through ops.Config; Sandbox
// itself neither holds nor calls it. Defaults to always-deny.
type ConfirmFunc func(ctx context.Context, pluginID, command string) bool

// DenyConfirm is the default ConfirmFunc: require_confirmation commands
// never run unless the host wires in a real UI prompt.
func DenyConfirm(context.Context, string, string) bool { return false }

// tracker counts operations in a one-second window; sampleHeapBytes
// below samples process-wide heap usage as a stand-in for per-plugin memory
// accounting (Starlark, unlike a V8 isolate, has no separate heap to
// query; the teacher's flyingrobots reference samples runtime.MemStats
// for the same reason).
type tracker struct {
	mu          sync.Mutex
	windowStart time.Time
	windowCount uint64
	now         func() time.Time
}

func newTracker() *tracker {
	return &tracker{now: time.Now}
}

func (t *tracker) recordOperation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if now.Sub(t.windowStart) >= time.Second {
		t.windowStart = now
		t.windowCount = 0
	}
	t.windowCount++
	return t.windowCount
}

func sampleHeapBytes() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc
}

// Sandbox wraps one plugin's worker with its resource envelope.
type Sandbox struct {
	ID           string
	Capabilities capability.Capabilities

	limits  ResourceLimits
	worker  *worker.Worker
	tracker *tracker
	logger  *zap.Logger
}

// Option configures a Sandbox at construction time via New.
type Option func(*Sandbox)

// WithLimits overrides the default resource limits.
func WithLimits(limits ResourceLimits) Option {
	return func(s *Sandbox) { s.limits = limits }
}

// New builds a Sandbox around an already-started worker.
func New(id string, caps capability.Capabilities, w *worker.Worker, logger *zap.Logger, opts ...Option) *Sandbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sandbox{
		ID:           id,
		Capabilities: caps,
		limits:       DefaultResourceLimits(),
		worker:       w,
		tracker:      newTracker(),
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs code inside the sandbox's timeout, rate limit, and memory
// cap.
func (s *Sandbox) Execute(ctx context.Context, code string) (starlark.Value, error) {
	return s.call(ctx, func(ctx context.Context) (starlark.Value, error) {
		return s.worker.Execute(ctx, code)
	})
}

// CallHook invokes hook inside the sandbox's timeout, rate limit, and
// memory cap.
func (s *Sandbox) CallHook(ctx context.Context, hook string, args starlark.Tuple) (starlark.Value, error) {
	return s.call(ctx, func(ctx context.Context) (starlark.Value, error) {
		return s.worker.CallHook(ctx, hook, args)
	})
}

func (s *Sandbox) call(ctx context.Context, fn func(context.Context) (starlark.Value, error)) (starlark.Value, error) {
	current := s.tracker.recordOperation()
	if current > s.limits.MaxOperations {
		return nil, &sandboxerr.RateLimitExceeded{Current: current, Limit: s.limits.MaxOperations}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.limits.Timeout)
	defer cancel()

	val, err := fn(callCtx)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, &sandboxerr.Timeout{Duration: s.limits.Timeout}
		}
		return nil, err
	}

	if used := sampleHeapBytes(); used > s.limits.MaxMemory {
		s.logger.Warn("sandbox memory cap exceeded",
			zap.String("plugin_id", s.ID), zap.Uint64("used", used), zap.Uint64("limit", s.limits.MaxMemory))
		return val, &sandboxerr.MemoryLimitExceeded{Used: used, Limit: s.limits.MaxMemory}
	}

	return val, nil
}

// Cleanup calls the plugin's "deactivate" hook on a best-effort basis
// (errors are logged, not propagated) and then shuts down the worker.
func (s *Sandbox) Cleanup(ctx context.Context) error {
	if _, err := s.worker.CallHook(ctx, "deactivate", nil); err != nil {
		s.logger.Debug("deactivate hook failed during cleanup", zap.String("plugin_id", s.ID), zap.Error(err))
	}
	return s.worker.Shutdown(ctx)
}
