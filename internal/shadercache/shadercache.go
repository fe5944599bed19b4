// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package shadercache caches compiled shader artifacts keyed by source
// hash, so rebuilding a program from identical source skips the
// compiler entirely.
package shadercache

import (
	"container/list"
	"hash/fnv"
	"sync"
	"sync/atomic"
)

// DefaultCapacity is the default maximum number of cached artifacts.
const DefaultCapacity = 64

// Hash computes the FNV-1a hash of shader source text.
func Hash(source string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(source)) // fnv.Write never returns an error
	return h.Sum64()
}

// Cache is a thread-safe LRU cache mapping source hashes to compiled
// SPIR-V words. Compilation dominates lookup cost by orders of
// magnitude, so a single mutex is sufficient here.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[uint64]*list.Element
	lru      *list.List // front = most recently used

	// Statistics (atomic for lock-free reads)
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

type cacheEntry struct {
	key  uint64
	code []uint32
}

// New creates a Cache holding at most capacity artifacts.
// capacity <= 0 selects DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[uint64]*list.Element, capacity),
		lru:      list.New(),
	}
}

// Get returns the cached artifact for key, if present.
// The returned slice is shared and must not be mutated.
func (c *Cache) Get(key uint64) ([]uint32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.lru.MoveToFront(el)
	c.hits.Add(1)
	return el.Value.(*cacheEntry).code, true
}

// Put stores the artifact for key, evicting the least recently used
// entry when the cache is full.
func (c *Cache) Put(key uint64, code []uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).code = code
		c.lru.MoveToFront(el)
		return
	}

	if c.lru.Len() >= c.capacity {
		oldest := c.lru.Back()
		if oldest != nil {
			c.lru.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
			c.evictions.Add(1)
		}
	}
	c.entries[key] = c.lru.PushFront(&cacheEntry{key: key, code: code})
}

// Len returns the number of cached artifacts.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats returns cumulative hit, miss, and eviction counts.
func (c *Cache) Stats() (hits, misses, evictions uint64) {
	return c.hits.Load(), c.misses.Load(), c.evictions.Load()
}
