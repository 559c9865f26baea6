package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUBasicOperations(t *testing.T) {
	c := New[string, int](&Config{MaxEntries: 3})

	c.Set("a", 1)
	c.Set("b", 2)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestLRUEviction(t *testing.T) {
	c := New[int, string](&Config{MaxEntries: 2})

	c.Set(1, "uno")
	c.Set(2, "dos")
	c.Get(1) // 1 becomes most recently used
	c.Set(3, "tres")

	_, ok := c.Get(2)
	assert.False(t, ok, "the least recently used entry is evicted")
	_, ok = c.Get(1)
	assert.True(t, ok)
	_, ok = c.Get(3)
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestLRUTTL(t *testing.T) {
	c := New[string, int](&Config{MaxEntries: 10, TTL: 10 * time.Millisecond})

	c.Set("k", 1)
	_, ok := c.Get("k")
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("k")
	assert.False(t, ok, "expired entries miss")
}

func TestLRUUpdateExisting(t *testing.T) {
	c := New[string, int](&Config{MaxEntries: 2})
	c.Set("k", 1)
	c.Set("k", 2)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}

func TestLRUStats(t *testing.T) {
	c := New[string, int](&Config{MaxEntries: 1})
	c.Set("a", 1)
	c.Get("a")
	c.Get("b")
	c.Set("c", 3) // evicts a

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Evictions)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)

	c.Purge()
	assert.Zero(t, c.Len())
	assert.Zero(t, c.Stats().Hits)
}
