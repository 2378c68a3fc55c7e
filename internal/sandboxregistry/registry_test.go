package sandboxregistry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/skretchpad/plugin-sandbox/internal/capability"
	"github.com/skretchpad/plugin-sandbox/internal/sandbox"
	"github.com/skretchpad/plugin-sandbox/internal/worker"
)

func newSandbox(t *testing.T, id string) *sandbox.Sandbox {
	t.Helper()
	w := worker.New(id, nil, zaptest.NewLogger(t))
	return sandbox.New(id, capability.None(), w, zaptest.NewLogger(t))
}

func TestRegisterGetList(t *testing.T) {
	r := New()
	sb := newSandbox(t, "plugin-a")
	require.NoError(t, r.Register(sb))

	got, ok := r.Get("plugin-a")
	require.True(t, ok)
	assert.Equal(t, sb, got)
	assert.Equal(t, []string{"plugin-a"}, r.List())
}

func TestRegisterDuplicateErrors(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newSandbox(t, "plugin-a")))
	err := r.Register(newSandbox(t, "plugin-a"))
	assert.Error(t, err)
}

func TestRemoveCleansUp(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newSandbox(t, "plugin-a")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.Remove(ctx, "plugin-a"))

	_, ok := r.Get("plugin-a")
	assert.False(t, ok)
}

func TestRemoveMissingIsNoop(t *testing.T) {
	r := New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, r.Remove(ctx, "missing"))
}

func TestCloseAll(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(newSandbox(t, "plugin-a")))
	require.NoError(t, r.Register(newSandbox(t, "plugin-b")))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, r.CloseAll(ctx))

	assert.Empty(t, r.List())
}
