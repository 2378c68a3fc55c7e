// Package worker runs one plugin's script in a dedicated goroutine,
// pinned to its own Starlark thread, communicating through a bounded
// message channel. Messages are processed strictly FIFO with at most
// one execution in flight, mirroring the original Rust implementation's
// single-threaded-runtime-per-worker design.
package worker

import (
	"context"
	"fmt"

	"go.starlark.net/starlark"
	"go.uber.org/zap"

	"github.com/skretchpad/plugin-sandbox/internal/sandboxerr"
)

// QueueCapacity is the bounded channel size a worker's inbox is created
// with, matching the host↔worker bridge back-pressure budget.
const QueueCapacity = 32

// BuiltinsFunc builds the host-function bridge injected into a plugin's
// Starlark global environment. It is called once, when the worker's
// goroutine starts, so bridge closures can capture the plugin id.
type BuiltinsFunc func(pluginID string) starlark.StringDict

type kind int

const (
	kindExecute kind = iota
	kindCallHook
	kindShutdown
)

type message struct {
	kind  kind
	code  string
	hook  string
	args  starlark.Tuple
	reply chan Result
}

// Result is what a worker sends back for Execute/CallHook requests.
type Result struct {
	Value starlark.Value
	Err   error
}

// Worker hosts a single plugin's Starlark isolate on its own goroutine.
type Worker struct {
	id       string
	inbox    chan message
	done     chan struct{}
	logger   *zap.Logger
	builtins BuiltinsFunc
}

// New starts a worker for pluginID and returns immediately; the
// goroutine builds its Starlark thread and globals as soon as it starts.
func New(id string, builtins BuiltinsFunc, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if builtins == nil {
		builtins = func(string) starlark.StringDict { return starlark.StringDict{} }
	}
	w := &Worker{
		id:       id,
		inbox:    make(chan message, QueueCapacity),
		done:     make(chan struct{}),
		logger:   logger,
		builtins: builtins,
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	defer close(w.done)

	thread := &starlark.Thread{
		Name: w.id,
		Load: func(*starlark.Thread, string) (starlark.StringDict, error) {
			return nil, fmt.Errorf("module loading is not supported in plugin scripts")
		},
	}
	globals := w.builtins(w.id)

	for msg := range w.inbox {
		switch msg.kind {
		case kindExecute:
			val, err := w.execOnce(thread, globals, msg.code)
			msg.reply <- Result{Value: val, Err: err}
		case kindCallHook:
			val, err := w.callHookOnce(thread, globals, msg.hook, msg.args)
			msg.reply <- Result{Value: val, Err: err}
		case kindShutdown:
			return
		}
	}
}

func (w *Worker) execOnce(thread *starlark.Thread, globals starlark.StringDict, code string) (val starlark.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &sandboxerr.ExecutionError{Msg: fmt.Sprintf("panic: %v", r)}
		}
	}()

	out, execErr := starlark.ExecFile(thread, w.id+".star", code, globals)
	if execErr != nil {
		return nil, &sandboxerr.ExecutionError{Msg: execErr.Error()}
	}
	for k, v := range out {
		globals[k] = v
	}
	if result, ok := out["result"]; ok {
		return result, nil
	}
	return starlark.None, nil
}

func (w *Worker) callHookOnce(thread *starlark.Thread, globals starlark.StringDict, hook string, args starlark.Tuple) (val starlark.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &sandboxerr.ExecutionError{Msg: fmt.Sprintf("panic: %v", r)}
		}
	}()

	fn, ok := globals[hook]
	if !ok {
		// An absent hook is optional, not an error: the plugin simply
		// didn't define it.
		return starlark.None, nil
	}
	callable, ok := fn.(starlark.Callable)
	if !ok {
		return nil, &sandboxerr.ExecutionError{Msg: fmt.Sprintf("hook %s is not callable", hook)}
	}
	result, callErr := starlark.Call(thread, callable, args, nil)
	if callErr != nil {
		return nil, &sandboxerr.ExecutionError{Msg: callErr.Error()}
	}
	return result, nil
}

// Execute runs code as a top-level Starlark program against the
// plugin's shared global environment. A "result" binding, if the code
// defines one, is returned as the value.
func (w *Worker) Execute(ctx context.Context, code string) (starlark.Value, error) {
	return w.send(ctx, message{kind: kindExecute, code: code})
}

// CallHook invokes a previously-defined hook function by name with args.
func (w *Worker) CallHook(ctx context.Context, hook string, args starlark.Tuple) (starlark.Value, error) {
	return w.send(ctx, message{kind: kindCallHook, hook: hook, args: args})
}

func (w *Worker) send(ctx context.Context, msg message) (starlark.Value, error) {
	msg.reply = make(chan Result, 1)

	select {
	case w.inbox <- msg:
	case <-w.done:
		return nil, &sandboxerr.WorkerDisconnected{PluginID: w.id}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case result := <-msg.reply:
		return result.Value, result.Err
	case <-w.done:
		return nil, &sandboxerr.WorkerDisconnected{PluginID: w.id}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown asks the worker to stop and waits for its goroutine to exit
// or ctx to expire, whichever comes first.
func (w *Worker) Shutdown(ctx context.Context) error {
	select {
	case w.inbox <- message{kind: kindShutdown}:
	case <-w.done:
		return nil
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
