// Package audit implements the bounded audit log every mediated operation
// appends to: a fixed-capacity ring buffer recording what was attempted,
// by which plugin, and whether the capability check allowed it.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultCapacity is the ring buffer size used when none is configured.
const DefaultCapacity = 10_000

// Event is one audit record. Operation is the mediated operation's
// canonical name (e.g. "fs.read", "cmd.exec"); Allowed reports whether
// the capability check permitted it; Detail is a short human-readable
// description of the argument that was checked (a path, a domain, a
// command name).
type Event struct {
	ID        string
	Timestamp time.Time
	PluginID  string
	Operation string
	Detail    string
	Allowed   bool
	Err       string
}

// Log is a bounded, thread-safe ring buffer of Events. When full, Append
// evicts the oldest entry to make room for the newest.
type Log struct {
	mu       sync.Mutex
	capacity int
	entries  []Event
	start    int // index of oldest entry within entries
	size     int // number of valid entries
	now      func() time.Time
}

// NewLog builds a Log with the given capacity. A non-positive capacity
// falls back to DefaultCapacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		entries:  make([]Event, capacity),
		now:      time.Now,
	}
}

// Append records an event, assigning it a fresh id and timestamp.
func (l *Log) Append(pluginID, operation, detail string, allowed bool, err error) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Timestamp: l.now(),
		PluginID:  pluginID,
		Operation: operation,
		Detail:    detail,
		Allowed:   allowed,
	}
	if err != nil {
		ev.Err = err.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	idx := (l.start + l.size) % l.capacity
	l.entries[idx] = ev
	if l.size < l.capacity {
		l.size++
	} else {
		l.start = (l.start + 1) % l.capacity
	}
	return ev
}

// All returns every retained event, oldest first.
func (l *Log) All() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, l.size)
	for i := 0; i < l.size; i++ {
		out[i] = l.entries[(l.start+i)%l.capacity]
	}
	return out
}

// ForPlugin returns every retained event for pluginID, oldest first.
func (l *Log) ForPlugin(pluginID string) []Event {
	all := l.All()
	out := make([]Event, 0, len(all))
	for _, ev := range all {
		if ev.PluginID == pluginID {
			out = append(out, ev)
		}
	}
	return out
}

// Len reports the number of retained events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}

// Clear discards every retained event.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.start, l.size = 0, 0
}
