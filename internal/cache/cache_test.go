package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func TestLRUCache_TTL(t *testing.T) {
	clock := &testClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[string](0, 10*time.Minute, WithClock(clock.now))

	c.Set("u1", "awaiting-amount")
	v, ok := c.Get("u1")
	assert.True(t, ok)
	assert.Equal(t, "awaiting-amount", v)

	clock.t = clock.t.Add(9 * time.Minute)
	c.Set("u1", "awaiting-note") // refreshes the TTL

	clock.t = clock.t.Add(9 * time.Minute)
	_, ok = c.Get("u1")
	assert.True(t, ok)

	clock.t = clock.t.Add(time.Minute)
	_, ok = c.Get("u1")
	assert.False(t, ok, "expired exactly at ttl")
	assert.Zero(t, c.Size())
}

func TestLRUCache_EvictsOldest(t *testing.T) {
	c := NewLRUCache[int](2, time.Hour)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok)
	_, ok = c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Size())
}

func TestLRUCache_Delete(t *testing.T) {
	c := NewLRUCache[int](0, time.Hour)
	c.Set("a", 1)
	c.Delete("a")
	c.Delete("missing")
	assert.Zero(t, c.Size())
}

func TestManager_CleanNow(t *testing.T) {
	clock := &testClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache[int](0, time.Minute, WithClock(clock.now))
	c.Set("a", 1)
	c.Set("b", 2)

	m := NewManager()
	m.Register(c)

	assert.Zero(t, m.CleanNow())
	clock.t = clock.t.Add(2 * time.Minute)
	assert.Equal(t, 2, m.CleanNow())
	assert.Zero(t, c.Size())
}

func TestManager_StartStop(t *testing.T) {
	m := NewManager()
	m.Register(NewLRUCache[int](0, time.Minute))
	m.StartCleanup(time.Millisecond)
	m.Stop()
	m.Stop()

	NewManager().Stop()
}
