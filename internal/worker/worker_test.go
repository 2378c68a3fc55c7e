package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
	"go.uber.org/zap/zaptest"
)

func TestExecuteReturnsResultBinding(t *testing.T) {
	w := New("plugin-a", nil, zaptest.NewLogger(t))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = w.Shutdown(ctx)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	val, err := w.Execute(ctx, "result = 1 + 2")
	require.NoError(t, err)
	assert.Equal(t, "3", val.String())
}

func TestExecuteSharesGlobalsAcrossCalls(t *testing.T) {
	w := New("plugin-a", nil, zaptest.NewLogger(t))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = w.Shutdown(ctx)
	}()

	ctx := context.Background()
	_, err := w.Execute(ctx, "def on_event(e):\n    return e + 1\n")
	require.NoError(t, err)

	val, err := w.CallHook(ctx, "on_event", starlark.Tuple{starlark.MakeInt(41)})
	require.NoError(t, err)
	assert.Equal(t, "42", val.String())
}

func TestCallHookUndefinedHookReturnsNone(t *testing.T) {
	w := New("plugin-a", nil, zaptest.NewLogger(t))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = w.Shutdown(ctx)
	}()

	val, err := w.CallHook(context.Background(), "missing_hook", nil)
	require.NoError(t, err)
	assert.Equal(t, starlark.None, val)
}

func TestExecuteSyntaxErrorIsExecutionError(t *testing.T) {
	w := New("plugin-a", nil, zaptest.NewLogger(t))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = w.Shutdown(ctx)
	}()

	_, err := w.Execute(context.Background(), "this is not valid starlark (((")
	assert.Error(t, err)
}

func TestBuiltinsInjectedIntoGlobals(t *testing.T) {
	builtins := func(pluginID string) starlark.StringDict {
		return starlark.StringDict{
			"plugin_id": starlark.String(pluginID),
		}
	}
	w := New("my-plugin", builtins, zaptest.NewLogger(t))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = w.Shutdown(ctx)
	}()

	val, err := w.Execute(context.Background(), "result = plugin_id")
	require.NoError(t, err)
	assert.Equal(t, `"my-plugin"`, val.String())
}

func TestShutdownDisconnectsWorker(t *testing.T) {
	w := New("plugin-a", nil, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Shutdown(ctx))

	_, err := w.Execute(context.Background(), "result = 1")
	assert.Error(t, err)
}

func TestExecuteRespectsContextCancellation(t *testing.T) {
	w := New("plugin-a", nil, zaptest.NewLogger(t))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = w.Shutdown(ctx)
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.Execute(ctx, "result = 1")
	assert.ErrorIs(t, err, context.Canceled)
}
