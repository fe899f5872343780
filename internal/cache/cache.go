package cache

import (
	"context"
	"sync"
	"time"

	"aifiesta/internal/core"
)

// LRUCache is a thread-safe LRU cache with per-entry expiration
type LRUCache struct {
	capacity int
	items    map[string]*entry
	mu       sync.Mutex
	head     *entry
	tail     *entry
	ctx      context.Context
	cancel   context.CancelFunc
}

type entry struct {
	value     any
	expiresAt int64
	key       string
	prev      *entry
	next      *entry
}

// NewCache creates an LRU cache holding at most capacity entries.
// Non-positive capacity selects core.CacheDefaultCapacity.
func NewCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = core.CacheDefaultCapacity
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &LRUCache{
		capacity: capacity,
		items:    make(map[string]*entry),
		ctx:      ctx,
		cancel:   cancel,
	}

	c.head = &entry{}
	c.tail = &entry{}
	c.head.next = c.tail
	c.tail.prev = c.head

	go c.cleanupLoop(core.CacheCleanupInterval)
	return c
}

func (c *LRUCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanupExpired()
		case <-c.ctx.Done():
			return
		}
	}
}

// Stop terminates the cleanup goroutine.
func (c *LRUCache) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Set stores value under key for ttl.
func (c *LRUCache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(key, value, ttl)
}

func (c *LRUCache) setLocked(key string, value any, ttl time.Duration) {
	expiresAt := time.Now().Add(ttl).UnixNano()
	if e, ok := c.items[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return
	}

	e := &entry{value: value, expiresAt: expiresAt, key: key}
	c.pushFront(e)
	c.items[key] = e

	if len(c.items) > c.capacity {
		c.evictOldest()
	}
}

// Get returns the value for key, or false if absent or expired.
func (c *LRUCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getLocked(key)
}

func (c *LRUCache) getLocked(key string) (any, bool) {
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}

	if time.Now().UnixNano() > e.expiresAt {
		c.unlink(e)
		delete(c.items, key)
		return nil, false
	}

	c.moveToFront(e)
	return e.value, true
}

// GetOrCreate returns the live value for key, creating it with create when
// absent. The entry's TTL is refreshed on every call, so keys expire only
// after ttl of inactivity.
func (c *LRUCache) GetOrCreate(key string, ttl time.Duration, create func() any) any {
	c.mu.Lock()
	defer c.mu.Unlock()

	value, ok := c.getLocked(key)
	if !ok {
		value = create()
	}
	c.setLocked(key, value, ttl)
	return value
}

// Len reports the number of stored entries, expired ones included until cleanup.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRUCache) pushFront(e *entry) {
	e.next = c.head.next
	e.prev = c.head
	c.head.next.prev = e
	c.head.next = e
}

func (c *LRUCache) moveToFront(e *entry) {
	c.unlink(e)
	c.pushFront(e)
}

func (c *LRUCache) unlink(e *entry) {
	e.prev.next = e.next
	e.next.prev = e.prev
}

func (c *LRUCache) evictOldest() {
	if c.tail.prev == c.head {
		return
	}
	e := c.tail.prev
	c.unlink(e)
	delete(c.items, e.key)
}

func (c *LRUCache) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixNano()
	for key, e := range c.items {
		if now > e.expiresAt {
			c.unlink(e)
			delete(c.items, key)
		}
	}
}
