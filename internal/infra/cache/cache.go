// Package cache provides a sharded in-memory TTL cache.
package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

type shard[T any] struct {
	mu    sync.RWMutex
	items map[string]entry[T]
}

// InMemory is a thread-safe in-memory cache with TTL. Keys are spread over
// independent shards so unrelated keys rarely contend on the same lock.
type InMemory[T any] struct {
	shards [shardCount]*shard[T]
	ttl    time.Duration
	now    func() time.Time
	stop   chan struct{}
	once   sync.Once
}

// New creates a new in-memory cache with the given TTL and starts a janitor
// that drops expired entries. Call Close to stop it.
func New[T any](ttl time.Duration) *InMemory[T] {
	c := &InMemory[T]{
		ttl:  ttl,
		now:  time.Now,
		stop: make(chan struct{}),
	}
	for i := range c.shards {
		c.shards[i] = &shard[T]{items: make(map[string]entry[T])}
	}
	go c.cleanup()
	return c
}

func (c *InMemory[T]) shardFor(key string) *shard[T] {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return c.shards[h.Sum32()%shardCount]
}

// Get retrieves a value from the cache. Returns false if not found or expired.
func (c *InMemory[T]) Get(key string) (T, bool) {
	s := c.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.items[key]
	if !ok || c.now().After(e.expiresAt) {
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores a value with the configured TTL, replacing any previous one.
func (c *InMemory[T]) Set(key string, value T) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = entry[T]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Delete removes a value from the cache.
func (c *InMemory[T]) Delete(key string) {
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
}

// Len counts live entries.
func (c *InMemory[T]) Len() int {
	now := c.now()
	n := 0
	for _, s := range c.shards {
		s.mu.RLock()
		for _, e := range s.items {
			if !now.After(e.expiresAt) {
				n++
			}
		}
		s.mu.RUnlock()
	}
	return n
}

// Close stops the janitor. The cache stays usable.
func (c *InMemory[T]) Close() {
	c.once.Do(func() { close(c.stop) })
}

// cleanup periodically removes expired entries, one shard at a time.
func (c *InMemory[T]) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}
		now := c.now()
		for _, s := range c.shards {
			s.mu.Lock()
			for k, v := range s.items {
				if now.After(v.expiresAt) {
					delete(s.items, k)
				}
			}
			s.mu.Unlock()
		}
	}
}
