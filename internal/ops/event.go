package ops

import (
	"context"

	"go.starlark.net/starlark"

	"github.com/skretchpad/plugin-sandbox/internal/sandboxerr"
)

// Subscribe implements event.subscribe.
func (s *Surface) Subscribe(pluginID, event string) error {
	const op = "event.subscribe"
	if _, err := s.lookup(pluginID); err != nil {
		return err
	}
	if s.events == nil {
		err := &sandboxerr.InternalError{Msg: "no event router configured"}
		s.audit(pluginID, op, event, false, err)
		return err
	}
	s.events.Subscribe(pluginID, event)
	s.audit(pluginID, op, event, true, nil)
	return nil
}

// Emit implements event.emit.
func (s *Surface) Emit(pluginID, event string, data map[string]interface{}) error {
	const op = "event.emit"
	if _, err := s.lookup(pluginID); err != nil {
		return err
	}
	if s.events == nil {
		err := &sandboxerr.InternalError{Msg: "no event router configured"}
		s.audit(pluginID, op, event, false, err)
		return err
	}
	s.events.Emit(pluginID, event, data)
	s.audit(pluginID, op, event, true, nil)
	return nil
}

// HookInvoke implements hook.invoke: a plugin asks the host to call one
// of its own registered hooks (e.g. a timer callback re-entering
// through the mediated surface so the call is audited like any other).
func (s *Surface) HookInvoke(ctx context.Context, pluginID, hook string, args starlark.Tuple) (starlark.Value, error) {
	const op = "hook.invoke"
	if _, err := s.lookup(pluginID); err != nil {
		return nil, err
	}
	if s.hooks == nil {
		err := &sandboxerr.InternalError{Msg: "no hook invoker configured"}
		s.audit(pluginID, op, hook, false, err)
		return nil, err
	}
	val, err := s.hooks.InvokeHook(ctx, pluginID, hook, args)
	s.audit(pluginID, op, hook, err == nil, err)
	return val, err
}
