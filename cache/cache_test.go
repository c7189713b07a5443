package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIsOrderIndependentCanonical(t *testing.T) {
	a := json.RawMessage(`{"path":"a.go","limit":10}`)
	b := json.RawMessage(`{"limit":10,"path":"a.go"}`)
	assert.Equal(t, Key("read", a), Key("read", b))
	assert.NotEqual(t, Key("read", a), Key("grep", a))
}

func TestGetMissThenHit(t *testing.T) {
	c, err := New(10, time.Hour)
	require.NoError(t, err)

	key := Key("read", json.RawMessage(`{"path":"a.go"}`))
	_, ok := c.Get(key)
	assert.False(t, ok)

	c.Put(key, "file contents", []string{"a.go"})
	val, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, "file contents", val)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Hits)
	assert.Equal(t, 1, stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate(), 1e-9)
}

func TestTTLExpiry(t *testing.T) {
	c, err := New(10, time.Millisecond)
	require.NoError(t, err)

	key := Key("read", json.RawMessage(`{"path":"a.go"}`))
	c.Put(key, "stale", []string{"a.go"})
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(key)
	assert.False(t, ok)
	assert.Equal(t, 1, c.Stats().Misses)
}

func TestInvalidateByExactPathAndParent(t *testing.T) {
	c, err := New(10, time.Hour)
	require.NoError(t, err)

	readKey := Key("read", json.RawMessage(`{"path":"src/a.go"}`))
	c.Put(readKey, "a contents", []string{"src/a.go"})

	lsKey := Key("ls", json.RawMessage(`{"path":"src"}`))
	c.Put(lsKey, "a.go\nb.go", []string{"src"})

	unrelatedKey := Key("read", json.RawMessage(`{"path":"other/c.go"}`))
	c.Put(unrelatedKey, "c contents", []string{"other/c.go"})

	dropped := c.Invalidate("src/a.go")
	assert.Equal(t, 2, dropped)

	_, ok := c.Get(readKey)
	assert.False(t, ok)
	_, ok = c.Get(lsKey)
	assert.False(t, ok)
	_, ok = c.Get(unrelatedKey)
	assert.True(t, ok)
}

func TestLRUEviction(t *testing.T) {
	c, err := New(2, time.Hour)
	require.NoError(t, err)

	c.Put("k1", "v1", nil)
	c.Put("k2", "v2", nil)
	c.Put("k3", "v3", nil)

	_, ok := c.Get("k1")
	assert.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Get("k3")
	assert.True(t, ok)
}
