// Package cache implements the tool-result cache from spec.md §4.C: an
// LRU bounded by size, a TTL bounded by age, and path-aware invalidation
// for writes/patches/undos.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// entry is the value stored per cache key. golang-lru/v2 has no native TTL,
// so staleness is checked on Get and treated as a miss.
type entry struct {
	value     string
	paths     []string
	storedAt  time.Time
}

// Stats mirrors the shape of agent.ContextStats: a small, flat snapshot
// suitable for a status line.
type Stats struct {
	Size          int
	Hits          int
	Misses        int
	Invalidations int
}

// HitRate returns Hits / (Hits + Misses), or 0 when there have been no
// lookups yet.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache is a tool-result cache keyed by (tool name, canonicalized args).
// It does not persist across sessions, per spec.md §4.C.
type Cache struct {
	ttl time.Duration

	mu            sync.Mutex
	lru           *lru.Cache[string, entry]
	hits, misses  int
	invalidations int
}

// New constructs a Cache holding at most size entries, each valid for at
// most ttl after being stored.
func New(size int, ttl time.Duration) (*Cache, error) {
	if size <= 0 {
		size = 256
	}
	l, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l, ttl: ttl}, nil
}

// Key computes the cache key for a tool call: sha256 of the tool name plus
// the canonical JSON encoding of its arguments. encoding/json already
// sorts map[string]any keys when marshaling, so round-tripping through a
// map[string]any canonicalizes key order before hashing.
func Key(tool string, args json.RawMessage) string {
	var canon map[string]any
	canonicalBytes := args
	if len(args) > 0 {
		if err := json.Unmarshal(args, &canon); err == nil {
			if b, err := json.Marshal(canon); err == nil {
				canonicalBytes = b
			}
		}
	}
	h := sha256.New()
	h.Write([]byte(tool))
	h.Write([]byte{0})
	h.Write(canonicalBytes)
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached result for key, if present and not expired. A
// stale hit is evicted and reported as a miss.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return "", false
	}
	if c.ttl > 0 && time.Since(e.storedAt) > c.ttl {
		c.lru.Remove(key)
		c.misses++
		return "", false
	}
	c.hits++
	return e.value, true
}

// Put stores value under key, recording the set of paths this result
// touched so a later write/patch can invalidate it. paths should include
// every file path the result describes (read's own path; every match for
// grep/glob; the listed directory for ls).
func (c *Cache) Put(key, value string, paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, entry{value: value, paths: paths, storedAt: time.Now()})
}

// Invalidate drops every cached entry whose recorded paths contain p or
// parent(p), per spec.md §4.C's invalidation rule. It returns the number
// of entries dropped.
func (c *Cache) Invalidate(p string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	cleanP := filepath.Clean(p)
	parent := filepath.Dir(cleanP)

	var toDrop []string
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		for _, recorded := range e.paths {
			rc := filepath.Clean(recorded)
			if rc == cleanP || rc == parent || strings.HasSuffix(cleanP, rc) {
				toDrop = append(toDrop, key)
				break
			}
		}
	}
	for _, key := range toDrop {
		c.lru.Remove(key)
	}
	c.invalidations += len(toDrop)
	return len(toDrop)
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:          c.lru.Len(),
		Hits:          c.hits,
		Misses:        c.misses,
		Invalidations: c.invalidations,
	}
}

// Purge empties the cache without affecting hit/miss/invalidation counters.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}
