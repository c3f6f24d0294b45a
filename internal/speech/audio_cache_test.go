package speech

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	a := Key("Rachel", "Hello there")
	assert.Len(t, a, 64)
	assert.Equal(t, a, Key("Rachel", "Hello there"))
	assert.NotEqual(t, a, Key("Adam", "Hello there"))
	assert.NotEqual(t, a, Key("Rachel", "Hello there."))
}

func TestAudioCache_PutGet(t *testing.T) {
	c := NewAudioCache(4, time.Hour)
	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Put("a", []byte("aaa"))
	got, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []byte("aaa"), got)

	c.Put("a", []byte("bbb"))
	got, _ = c.Get("a")
	assert.Equal(t, []byte("bbb"), got)
	assert.Equal(t, 1, c.Len())
}

func TestAudioCache_EvictsOldestFirst(t *testing.T) {
	c := NewAudioCache(2, 0)
	c.Put("a", []byte("1"))
	c.Put("b", []byte("2"))
	c.Put("c", []byte("3"))

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("a")
	assert.False(t, ok)
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestAudioCache_TTLAndSweep(t *testing.T) {
	now := time.Date(2025, 10, 15, 10, 0, 0, 0, time.UTC)
	c := NewAudioCache(10, time.Minute)
	c.now = func() time.Time { return now }

	c.Put("old", []byte("1"))
	now = now.Add(45 * time.Second)
	c.Put("new", []byte("2"))
	now = now.Add(30 * time.Second)

	_, ok := c.Get("old")
	assert.False(t, ok, "expired entries are not served")
	_, ok = c.Get("new")
	assert.True(t, ok)

	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())

	now = now.Add(time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 0, c.Len())
}
