package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/skretchpad/plugin-sandbox/internal/capability"
	"github.com/skretchpad/plugin-sandbox/internal/sandboxerr"
	"github.com/skretchpad/plugin-sandbox/internal/worker"
)

func newTestSandbox(t *testing.T, opts ...Option) *Sandbox {
	t.Helper()
	w := worker.New("plugin-a", nil, zaptest.NewLogger(t))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = w.Shutdown(ctx)
	})
	return New("plugin-a", capability.None(), w, zaptest.NewLogger(t), opts...)
}

func TestExecuteWithinLimits(t *testing.T) {
	s := newTestSandbox(t)
	val, err := s.Execute(context.Background(), "result = 1 + 1")
	require.NoError(t, err)
	assert.Equal(t, "2", val.String())
}

func TestRateLimitExceeded(t *testing.T) {
	s := newTestSandbox(t, WithLimits(ResourceLimits{
		MaxMemory:     DefaultResourceLimits().MaxMemory,
		Timeout:       DefaultResourceLimits().Timeout,
		MaxOperations: 2,
	}))

	ctx := context.Background()
	_, err := s.Execute(ctx, "result = 1")
	require.NoError(t, err)
	_, err = s.Execute(ctx, "result = 1")
	require.NoError(t, err)
	_, err = s.Execute(ctx, "result = 1")
	var rateErr *sandboxerr.RateLimitExceeded
	assert.ErrorAs(t, err, &rateErr)
}

func TestRateLimitWindowResets(t *testing.T) {
	s := newTestSandbox(t, WithLimits(ResourceLimits{
		MaxMemory:     DefaultResourceLimits().MaxMemory,
		Timeout:       DefaultResourceLimits().Timeout,
		MaxOperations: 1,
	}))

	base := time.Now()
	tick := base
	s.tracker.now = func() time.Time { return tick }

	ctx := context.Background()
	_, err := s.Execute(ctx, "result = 1")
	require.NoError(t, err)

	_, err = s.Execute(ctx, "result = 1")
	assert.Error(t, err)

	tick = base.Add(2 * time.Second)
	_, err = s.Execute(ctx, "result = 1")
	assert.NoError(t, err)
}

func TestTimeoutExceeded(t *testing.T) {
	s := newTestSandbox(t, WithLimits(ResourceLimits{
		MaxMemory:     DefaultResourceLimits().MaxMemory,
		Timeout:       time.Nanosecond,
		MaxOperations: DefaultResourceLimits().MaxOperations,
	}))

	_, err := s.Execute(context.Background(), "result = 1")
	var timeoutErr *sandboxerr.Timeout
	assert.ErrorAs(t, err, &timeoutErr)
}

func TestCleanupCallsDeactivateAndShutsDown(t *testing.T) {
	w := worker.New("plugin-a", nil, zaptest.NewLogger(t))
	s := New("plugin-a", capability.None(), w, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Cleanup(ctx))

	_, err := w.Execute(context.Background(), "result = 1")
	assert.Error(t, err)
}
