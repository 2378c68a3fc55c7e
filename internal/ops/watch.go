package ops

import (
	"strings"
	"sync"
)

type watchEntry struct {
	pluginID string
	path     string
	ch       chan FileEvent
}

// watchTable tracks active fs.watch registrations, keyed by opaque
// watch id, so Unwatch and raw filesystem event relay can find them.
type watchTable struct {
	mu      sync.Mutex
	entries map[string]*watchEntry
}

func newWatchTable() *watchTable {
	return &watchTable{entries: make(map[string]*watchEntry)}
}

func (t *watchTable) add(id, pluginID, path string) chan FileEvent {
	ch := make(chan FileEvent, 16)
	t.mu.Lock()
	t.entries[id] = &watchEntry{pluginID: pluginID, path: path, ch: ch}
	t.mu.Unlock()
	return ch
}

func (t *watchTable) remove(id, pluginID string) (*watchEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok || e.pluginID != pluginID {
		return nil, false
	}
	delete(t.entries, id)
	return e, true
}

// pathStillWatched reports whether any remaining entry covers path,
// used to decide whether to release the underlying watcher root.
func (t *watchTable) pathStillWatched(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.path == path {
			return true
		}
	}
	return false
}

// dispatch relays a raw filesystem event to every watch whose
// registered path is a prefix of (or equal to) the changed path.
func (t *watchTable) dispatch(changedPath, kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if changedPath != e.path && !strings.HasPrefix(changedPath, e.path+"/") {
			continue
		}
		select {
		case e.ch <- FileEvent{Kind: kind, Paths: []string{changedPath}}:
		default:
		}
	}
}
