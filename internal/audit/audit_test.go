package audit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndAll(t *testing.T) {
	l := NewLog(10)
	l.Append("plugin-a", "fs.read", "/workspace/a.txt", true, nil)
	l.Append("plugin-b", "cmd.exec", "rm", false, errors.New("command not allowed: rm"))

	events := l.All()
	require.Len(t, events, 2)
	assert.Equal(t, "plugin-a", events[0].PluginID)
	assert.True(t, events[0].Allowed)
	assert.Equal(t, "plugin-b", events[1].PluginID)
	assert.False(t, events[1].Allowed)
	assert.Equal(t, "command not allowed: rm", events[1].Err)
	assert.NotEmpty(t, events[0].ID)
	assert.NotEqual(t, events[0].ID, events[1].ID)
}

func TestOverflowEvictsOldest(t *testing.T) {
	l := NewLog(3)
	l.Append("p", "op", "1", true, nil)
	l.Append("p", "op", "2", true, nil)
	l.Append("p", "op", "3", true, nil)
	l.Append("p", "op", "4", true, nil)

	events := l.All()
	require.Len(t, events, 3)
	assert.Equal(t, "2", events[0].Detail)
	assert.Equal(t, "3", events[1].Detail)
	assert.Equal(t, "4", events[2].Detail)
}

func TestForPluginFilters(t *testing.T) {
	l := NewLog(10)
	l.Append("a", "fs.read", "x", true, nil)
	l.Append("b", "fs.read", "y", true, nil)
	l.Append("a", "fs.write", "z", true, nil)

	events := l.ForPlugin("a")
	require.Len(t, events, 2)
	assert.Equal(t, "x", events[0].Detail)
	assert.Equal(t, "z", events[1].Detail)
}

func TestClear(t *testing.T) {
	l := NewLog(10)
	l.Append("a", "fs.read", "x", true, nil)
	require.Equal(t, 1, l.Len())
	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.All())
}

func TestDefaultCapacityFallback(t *testing.T) {
	l := NewLog(0)
	assert.Equal(t, DefaultCapacity, l.capacity)
	l2 := NewLog(-5)
	assert.Equal(t, DefaultCapacity, l2.capacity)
}

func TestTimestampsMonotonicOrder(t *testing.T) {
	l := NewLog(10)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	i := 0
	l.now = func() time.Time {
		i++
		return base.Add(time.Duration(i) * time.Second)
	}
	l.Append("a", "op", "1", true, nil)
	l.Append("a", "op", "2", true, nil)
	events := l.All()
	assert.True(t, events[1].Timestamp.After(events[0].Timestamp))
}
