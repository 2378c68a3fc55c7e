package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/skretchpad/plugin-sandbox/internal/audit"
	"github.com/skretchpad/plugin-sandbox/internal/capability"
)

type fakeEventRouter struct {
	subscriptions []string
	emitted       []string
}

func (f *fakeEventRouter) Subscribe(pluginID, event string) {
	f.subscriptions = append(f.subscriptions, pluginID+":"+event)
}

func (f *fakeEventRouter) Emit(emitterID, event string, data map[string]interface{}) {
	f.emitted = append(f.emitted, emitterID+":"+event)
}

func TestSubscribeAndEmitDelegateToRouter(t *testing.T) {
	router := &fakeEventRouter{}
	s := New(Config{
		Capabilities: func(string) (capability.Capabilities, bool) { return capability.None(), true },
		Audit:        audit.NewLog(10),
		Events:       router,
	})

	require.NoError(t, s.Subscribe("p1", "saved"))
	require.NoError(t, s.Emit("p1", "saved", map[string]interface{}{"x": 1}))

	assert.Contains(t, router.subscriptions, "p1:saved")
	assert.Contains(t, router.emitted, "p1:saved")
}

type fakeHookInvoker struct {
	called bool
}

func (f *fakeHookInvoker) InvokeHook(ctx context.Context, pluginID, hook string, args starlark.Tuple) (starlark.Value, error) {
	f.called = true
	return starlark.None, nil
}

func TestHookInvokeDelegatesToInvoker(t *testing.T) {
	invoker := &fakeHookInvoker{}
	s := New(Config{
		Capabilities: func(string) (capability.Capabilities, bool) { return capability.None(), true },
		Audit:        audit.NewLog(10),
		Hooks:        invoker,
	})
	_, err := s.HookInvoke(context.Background(), "p1", "on_timer", nil)
	require.NoError(t, err)
	assert.True(t, invoker.called)
}
