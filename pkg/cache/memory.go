package cache

import (
	"context"
	"sync"
	"time"
)

const defaultGCInterval = 30 * time.Second

type memoryEntry struct {
	value      string
	expiration time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiration.IsZero() && !e.expiration.After(now)
}

type memoryCache struct {
	mu     sync.RWMutex
	items  map[string]memoryEntry
	stopGC chan struct{}
	closed bool
	now    func() time.Time
}

// NewMemoryCache returns a process-local Cache. A background goroutine drops
// expired entries until Close is called.
func NewMemoryCache() Cache {
	return newMemoryCache(defaultGCInterval)
}

func newMemoryCache(gcInterval time.Duration) *memoryCache {
	c := &memoryCache{
		items:  make(map[string]memoryEntry),
		stopGC: make(chan struct{}),
		now:    time.Now,
	}
	go c.startGC(gcInterval)
	return c
}

func (c *memoryCache) SetNX(_ context.Context, key string, value string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, ErrInvalidKey
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	if item, exists := c.items[key]; exists && !item.expired(c.now()) {
		return false, nil
	}
	c.items[key] = memoryEntry{value: value, expiration: c.expiry(ttl)}
	return true, nil
}

func (c *memoryCache) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists {
		return ErrKeyNotFound
	}
	delete(c.items, key)
	return nil
}

func (c *memoryCache) Flush(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]memoryEntry)
	return nil
}

func (c *memoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	close(c.stopGC)
	c.items = make(map[string]memoryEntry)
	c.closed = true
	return nil
}

func (c *memoryCache) startGC(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopGC:
			return
		}
	}
}

func (c *memoryCache) cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return 0
	}
	var expired int
	now := c.now()
	for k, v := range c.items {
		if v.expired(now) {
			delete(c.items, k)
			expired++
		}
	}
	return expired
}
