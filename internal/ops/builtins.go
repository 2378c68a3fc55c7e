package ops

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/skretchpad/plugin-sandbox/internal/sandboxerr"
)

// watchHookTimeout bounds the on_file_change hook call a fs.watch
// delivery triggers; it must not let one slow script wedge the
// watch-relay goroutine.
const watchHookTimeout = 5 * time.Second

// Builtins turns a Surface into the Starlark global environment a
// plugin's worker goroutine predeclares once at startup. It satisfies
// worker.BuiltinsFunc without ops importing worker, so the two packages
// stay decoupled: cmd/sandboxd wires ops.Builtins(surface) directly as
// a manager.WorkerFactory's builtins argument.
func Builtins(s *Surface) func(pluginID string) starlark.StringDict {
	return func(pluginID string) starlark.StringDict {
		return starlark.StringDict{
			"fs":     fsModule(s, pluginID),
			"net":    netModule(s, pluginID),
			"cmd":    cmdModule(s, pluginID),
			"ui":     uiModule(s, pluginID),
			"editor": editorModule(s, pluginID),
			"event":  eventModule(s, pluginID),
			"hook":   hookModule(s, pluginID),
		}
	}
}

func fsModule(s *Surface, pluginID string) *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "fs",
		Members: starlark.StringDict{
			"read": starlark.NewBuiltin("fs.read", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var path string
				if err := starlark.UnpackArgs("fs.read", args, kwargs, "path", &path); err != nil {
					return nil, err
				}
				data, err := s.Read(pluginID, path)
				if err != nil {
					return nil, err
				}
				return starlark.String(data), nil
			}),
			"write": starlark.NewBuiltin("fs.write", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var path, content string
				if err := starlark.UnpackArgs("fs.write", args, kwargs, "path", &path, "content", &content); err != nil {
					return nil, err
				}
				if err := s.Write(pluginID, path, []byte(content)); err != nil {
					return nil, err
				}
				return starlark.None, nil
			}),
			"list": starlark.NewBuiltin("fs.list", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var path string
				if err := starlark.UnpackArgs("fs.list", args, kwargs, "path", &path); err != nil {
					return nil, err
				}
				names, err := s.List(pluginID, path)
				if err != nil {
					return nil, err
				}
				return stringList(names), nil
			}),
			"watch": starlark.NewBuiltin("fs.watch", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var path string
				if err := starlark.UnpackArgs("fs.watch", args, kwargs, "path", &path); err != nil {
					return nil, err
				}
				id, ch, err := s.Watch(pluginID, path)
				if err != nil {
					return nil, err
				}
				go relayWatchEvents(s, pluginID, ch)
				return starlark.String(id), nil
			}),
			"unwatch": starlark.NewBuiltin("fs.unwatch", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var watchID string
				if err := starlark.UnpackArgs("fs.unwatch", args, kwargs, "watch_id", &watchID); err != nil {
					return nil, err
				}
				if err := s.Unwatch(pluginID, watchID); err != nil {
					return nil, err
				}
				return starlark.None, nil
			}),
		},
	}
}

// relayWatchEvents drains a fs.watch channel and delivers each event to
// the owning plugin's on_file_change hook, reusing HookInvoker rather
// than inventing a second async delivery path into Starlark: a worker
// only ever runs one callable at a time, the same discipline CallHook
// already enforces.
func relayWatchEvents(s *Surface, pluginID string, ch <-chan FileEvent) {
	if s.hooks == nil {
		return
	}
	for ev := range ch {
		args := starlark.Tuple{starlark.String(ev.Kind), stringList(ev.Paths)}
		ctx, cancel := context.WithTimeout(context.Background(), watchHookTimeout)
		_, _ = s.hooks.InvokeHook(ctx, pluginID, "on_file_change", args)
		cancel()
	}
}

func netModule(s *Surface, pluginID string) *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "net",
		Members: starlark.StringDict{
			"fetch": starlark.NewBuiltin("net.fetch", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var url string
				if err := starlark.UnpackArgs("net.fetch", args, kwargs, "url", &url); err != nil {
					return nil, err
				}
				body, err := s.Fetch(threadContext(thread), pluginID, url)
				if err != nil {
					return nil, err
				}
				return starlark.String(body), nil
			}),
		},
	}
}

func cmdModule(s *Surface, pluginID string) *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "cmd",
		Members: starlark.StringDict{
			"exec": starlark.NewBuiltin("cmd.exec", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var command string
				var argList *starlark.List
				if err := starlark.UnpackArgs("cmd.exec", args, kwargs, "command", &command, "args?", &argList); err != nil {
					return nil, err
				}
				clean, err := stringsFromList(argList)
				if err != nil {
					return nil, err
				}
				out, execErr := s.Exec(threadContext(thread), pluginID, command, clean)
				if execErr != nil {
					return nil, execErr
				}
				return starlark.String(out), nil
			}),
		},
	}
}

func uiModule(s *Surface, pluginID string) *starlarkstruct.Module {
	statusBar := &starlarkstruct.Module{
		Name: "status_bar",
		Members: starlark.StringDict{
			"add": starlark.NewBuiltin("ui.status_bar.add", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var itemID, text string
				if err := starlark.UnpackArgs("ui.status_bar.add", args, kwargs, "item_id", &itemID, "text", &text); err != nil {
					return nil, err
				}
				return starlark.None, s.StatusBarAdd(pluginID, itemID, text)
			}),
			"remove": starlark.NewBuiltin("ui.status_bar.remove", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var itemID string
				if err := starlark.UnpackArgs("ui.status_bar.remove", args, kwargs, "item_id", &itemID); err != nil {
					return nil, err
				}
				return starlark.None, s.StatusBarRemove(pluginID, itemID)
			}),
		},
	}
	panel := &starlarkstruct.Module{
		Name: "panel",
		Members: starlark.StringDict{
			"show": starlark.NewBuiltin("ui.panel.show", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var panelID string
				if err := starlark.UnpackArgs("ui.panel.show", args, kwargs, "panel_id", &panelID); err != nil {
					return nil, err
				}
				return starlark.None, s.PanelShow(pluginID, panelID)
			}),
			"hide": starlark.NewBuiltin("ui.panel.hide", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var panelID string
				if err := starlark.UnpackArgs("ui.panel.hide", args, kwargs, "panel_id", &panelID); err != nil {
					return nil, err
				}
				return starlark.None, s.PanelHide(pluginID, panelID)
			}),
		},
	}
	return &starlarkstruct.Module{
		Name: "ui",
		Members: starlark.StringDict{
			"notify": starlark.NewBuiltin("ui.notify", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var message string
				if err := starlark.UnpackArgs("ui.notify", args, kwargs, "message", &message); err != nil {
					return nil, err
				}
				return starlark.None, s.Notify(pluginID, message)
			}),
			"status_bar": statusBar,
			"panel":      panel,
		},
	}
}

func editorModule(s *Surface, pluginID string) *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "editor",
		Members: starlark.StringDict{
			"get_content": starlark.NewBuiltin("editor.get_content", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				content, err := s.GetContent(threadContext(thread), pluginID)
				if err != nil {
					return nil, err
				}
				return starlark.String(content), nil
			}),
			"set_content": starlark.NewBuiltin("editor.set_content", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var content string
				if err := starlark.UnpackArgs("editor.set_content", args, kwargs, "content", &content); err != nil {
					return nil, err
				}
				return starlark.None, s.SetContent(threadContext(thread), pluginID, content)
			}),
			"get_active_file": starlark.NewBuiltin("editor.get_active_file", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				path, err := s.GetActiveFile(threadContext(thread), pluginID)
				if err != nil {
					return nil, err
				}
				return starlark.String(path), nil
			}),
		},
	}
}

func eventModule(s *Surface, pluginID string) *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "event",
		Members: starlark.StringDict{
			"subscribe": starlark.NewBuiltin("event.subscribe", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var name string
				if err := starlark.UnpackArgs("event.subscribe", args, kwargs, "event", &name); err != nil {
					return nil, err
				}
				return starlark.None, s.Subscribe(pluginID, name)
			}),
			"emit": starlark.NewBuiltin("event.emit", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var name string
				var data *starlark.Dict
				if err := starlark.UnpackArgs("event.emit", args, kwargs, "event", &name, "data?", &data); err != nil {
					return nil, err
				}
				payload, err := dictToGo(data)
				if err != nil {
					return nil, err
				}
				return starlark.None, s.Emit(pluginID, name, payload)
			}),
		},
	}
}

func hookModule(s *Surface, pluginID string) *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "hook",
		Members: starlark.StringDict{
			"invoke": starlark.NewBuiltin("hook.invoke", func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				var hookName string
				var rest starlark.Tuple
				head := args
				if len(args) > 1 {
					head = args[:1]
					rest = args[1:]
				}
				if err := starlark.UnpackArgs("hook.invoke", head, kwargs, "hook", &hookName); err != nil {
					return nil, err
				}
				return s.HookInvoke(threadContext(thread), pluginID, hookName, rest)
			}),
		},
	}
}

// threadContext gives every builtin a context bounded by the worker's
// own per-call deadline would be ideal; until the sandbox wrapper
// thread a context.Context through starlark.Thread.Local, a background
// context is the best a mediated call can do and individual ops (net,
// cmd, editor) still enforce their own timeouts internally.
func threadContext(thread *starlark.Thread) context.Context {
	if v := thread.Local("ctx"); v != nil {
		if ctx, ok := v.(context.Context); ok {
			return ctx
		}
	}
	return context.Background()
}

func stringList(values []string) *starlark.List {
	elems := make([]starlark.Value, len(values))
	for i, v := range values {
		elems[i] = starlark.String(v)
	}
	return starlark.NewList(elems)
}

func stringsFromList(l *starlark.List) ([]string, error) {
	if l == nil {
		return nil, nil
	}
	out := make([]string, 0, l.Len())
	iter := l.Iterate()
	defer iter.Done()
	var v starlark.Value
	for iter.Next(&v) {
		s, ok := v.(starlark.String)
		if !ok {
			return nil, fmt.Errorf("expected string list element, got %s", v.Type())
		}
		out = append(out, string(s))
	}
	return out, nil
}

// dictToGo converts a Starlark dict of string keys into a Go map
// suitable for event.emit payloads and ui.* bridge calls.
func dictToGo(d *starlark.Dict) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if d == nil {
		return out, nil
	}
	for _, item := range d.Items() {
		key, ok := item[0].(starlark.String)
		if !ok {
			return nil, fmt.Errorf("event data keys must be strings, got %s", item[0].Type())
		}
		val, err := starlarkToGo(item[1])
		if err != nil {
			return nil, err
		}
		out[string(key)] = val
	}
	return out, nil
}

func starlarkToGo(v starlark.Value) (interface{}, error) {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(x), nil
	case starlark.Int:
		i, ok := x.Int64()
		if !ok {
			return nil, fmt.Errorf("integer out of range: %s", x.String())
		}
		return i, nil
	case starlark.Float:
		return float64(x), nil
	case starlark.String:
		return string(x), nil
	case *starlark.List:
		out := make([]interface{}, 0, x.Len())
		iter := x.Iterate()
		defer iter.Done()
		var elem starlark.Value
		for iter.Next(&elem) {
			converted, err := starlarkToGo(elem)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return out, nil
	case *starlark.Dict:
		return dictToGo(x)
	default:
		return nil, &sandboxerr.ExecutionError{Msg: "unsupported value type in bridge: " + strings.TrimSpace(x.Type())}
	}
}
