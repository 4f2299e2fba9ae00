// Package cache provides a sharded TTL cache keyed by symbol.
package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

// TTLCache is a sharded symbol-keyed cache with per-cache TTL. Lookups of
// expired entries report a miss; expired values linger until overwritten
// or cleaned up.
type TTLCache[V any] struct {
	ttl    time.Duration
	shards [numShards]*shard[V]
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]entry[V]
}

type entry[V any] struct {
	value     V
	updatedAt time.Time
}

// NewTTLCache creates a cache whose entries expire after ttl. A zero ttl
// disables expiry.
func NewTTLCache[V any](ttl time.Duration) *TTLCache[V] {
	c := &TTLCache[V]{ttl: ttl}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &shard[V]{items: make(map[string]entry[V])}
	}
	return c
}

func (c *TTLCache[V]) getShard(key string) *shard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Set stores a value for a symbol.
func (c *TTLCache[V]) Set(symbol string, value V) {
	s := c.getShard(symbol)
	s.mu.Lock()
	s.items[symbol] = entry[V]{value: value, updatedAt: time.Now()}
	s.mu.Unlock()
}

// Get retrieves a live value for a symbol.
func (c *TTLCache[V]) Get(symbol string) (V, bool) {
	s := c.getShard(symbol)
	s.mu.RLock()
	e, ok := s.items[symbol]
	s.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if c.ttl > 0 && time.Since(e.updatedAt) > c.ttl {
		return zero, false
	}
	return e.value, true
}

// Delete removes a symbol from the cache.
func (c *TTLCache[V]) Delete(symbol string) {
	s := c.getShard(symbol)
	s.mu.Lock()
	delete(s.items, symbol)
	s.mu.Unlock()
}

// Len returns total items across all shards, expired ones included.
func (c *TTLCache[V]) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

// Cleanup removes entries older than the TTL and reports how many.
func (c *TTLCache[V]) Cleanup() int {
	if c.ttl <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-c.ttl)
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for sym, e := range s.items {
			if e.updatedAt.Before(cutoff) {
				delete(s.items, sym)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
