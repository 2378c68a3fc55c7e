// Package hotreload implements the Hot-Reload Watcher: a filesystem
// watcher over the plugins root that debounces bursts of edits and
// asks the Plugin Manager to reload the affected plugin. It owns the
// single fsnotify.Watcher shared with the operations surface's
// fs.watch/fs.unwatch (per the Open Question decision recorded in
// DESIGN.md), relaying every raw event to it in addition to its own
// debounce logic.
package hotreload

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DebounceWindow is how long the watcher waits after the last observed
// change under a plugin directory before reloading it.
const DebounceWindow = 500 * time.Millisecond

// SettleDelay is an additional pause after the debounce window elapses,
// giving a writer (editor save, git checkout) time to finish writing
// every file in a multi-file change before the reload reads them.
const SettleDelay = 200 * time.Millisecond

// Reloader reloads a plugin by id. Satisfied by *manager.Manager.
type Reloader interface {
	Reload(ctx context.Context, id string) error
}

// Dispatcher relays a raw filesystem event to anything else interested
// in it (the operations surface's fs.watch relay). Satisfied by
// *ops.Surface.
type Dispatcher interface {
	DispatchFileEvent(changedPath, kind string)
}

// Watcher owns one fsnotify.Watcher covering every plugin directory
// currently tracked, multiplexing raw events between its own
// debounce-then-reload logic and an external Dispatcher.
type Watcher struct {
	fsw        *fsnotify.Watcher
	reloader   Reloader
	dispatcher Dispatcher
	logger     *zap.Logger

	mu         sync.Mutex
	refCounts  map[string]int    // watched directory -> number of registrants
	pluginDirs map[string]string // plugin id -> canonical plugin directory
	timers     map[string]*time.Timer

	closeOnce sync.Once
	done      chan struct{}
}

// New starts a Watcher. Call Close when shutting down.
func New(reloader Reloader, dispatcher Dispatcher, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:        fsw,
		reloader:   reloader,
		dispatcher: dispatcher,
		logger:     logger,
		refCounts:  make(map[string]int),
		pluginDirs: make(map[string]string),
		timers:     make(map[string]*time.Timer),
		done:       make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// WatchPlugin adds id's directory (and every existing subdirectory) to
// the watcher and remembers it for debounce-then-reload.
func (w *Watcher) WatchPlugin(id, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := w.addRecursive(abs); err != nil {
		return err
	}
	w.mu.Lock()
	w.pluginDirs[id] = abs
	w.mu.Unlock()
	return nil
}

// UnwatchPlugin stops tracking id for reload purposes and stops any
// pending debounce timer for it. The fsnotify watch on its directory is
// not removed.
func (w *Watcher) UnwatchPlugin(id string) {
	w.mu.Lock()
	delete(w.pluginDirs, id)
	if t, ok := w.timers[id]; ok {
		t.Stop()
		delete(w.timers, id)
	}
	w.mu.Unlock()
}

// AddWatch implements ops.FileWatcher: it adds path to the shared
// watcher, refcounted so overlapping fs.watch registrations and plugin
// roots don't fight over Remove.
func (w *Watcher) AddWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.refCounts[path] == 0 {
		if err := w.fsw.Add(path); err != nil {
			return err
		}
	}
	w.refCounts[path]++
	return nil
}

// RemoveWatch implements ops.FileWatcher.
func (w *Watcher) RemoveWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.refCounts[path] == 0 {
		return nil
	}
	w.refCounts[path]--
	if w.refCounts[path] > 0 {
		return nil
	}
	delete(w.refCounts, path)
	return w.fsw.Remove(path)
}

// addRecursive adds dir and every subdirectory beneath it to the
// underlying fsnotify watcher. fsnotify does not watch recursively on
// its own.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.AddWatch(path)
	})
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if w.dispatcher != nil {
		w.dispatcher.DispatchFileEvent(event.Name, kindOf(event.Op))
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.AddWatch(event.Name)
		}
	}

	w.scheduleReload(event.Name)
}

func kindOf(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Chmod):
		return "chmod"
	default:
		return "unknown"
	}
}

// scheduleReload finds which tracked plugin directory (if any) owns
// changedPath and (re)starts its debounce timer.
func (w *Watcher) scheduleReload(changedPath string) {
	w.mu.Lock()
	var id string
	for pid, d := range w.pluginDirs {
		if changedPath == d || strings.HasPrefix(changedPath, d+string(filepath.Separator)) {
			id = pid
			break
		}
	}
	if id == "" {
		w.mu.Unlock()
		return
	}
	if t, ok := w.timers[id]; ok {
		t.Stop()
	}
	w.timers[id] = time.AfterFunc(DebounceWindow, func() { w.reload(id) })
	w.mu.Unlock()
}

func (w *Watcher) reload(id string) {
	time.Sleep(SettleDelay)
	w.mu.Lock()
	delete(w.timers, id)
	_, stillTracked := w.pluginDirs[id]
	w.mu.Unlock()
	if !stillTracked || w.reloader == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := w.reloader.Reload(ctx, id); err != nil {
		w.logger.Warn("hot reload failed", zap.String("plugin_id", id), zap.Error(err))
	}
}

// Close stops the watcher and releases the underlying fsnotify handle.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	return w.fsw.Close()
}
