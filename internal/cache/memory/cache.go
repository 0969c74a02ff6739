// Package memory provides an in-memory cache implementation.
// This is suitable for single-node deployments where Redis is not available.
package memory

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/prn-tf/mediaboard/internal/repository"
)

// Cache implements repository.Cache using in-memory storage.
// This is NOT suitable for distributed deployments.
type Cache struct {
	mu      sync.RWMutex
	items   map[string]*cacheItem
	stopCh  chan struct{}
	stopped bool
}

// cacheItem represents a single cached item.
type cacheItem struct {
	value     []byte
	expiresAt time.Time
	noExpiry  bool
}

// isExpired checks if the item has expired.
func (i *cacheItem) isExpired() bool {
	if i.noExpiry {
		return false
	}
	return time.Now().After(i.expiresAt)
}

// NewCache creates a new in-memory cache.
func NewCache() *Cache {
	c := &Cache{
		items:  make(map[string]*cacheItem),
		stopCh: make(chan struct{}),
	}

	go c.cleanupLoop()

	return c
}

// cleanupLoop periodically removes expired items.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes expired items.
func (c *Cache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, item := range c.items {
		if item.isExpired() {
			delete(c.items, key)
		}
	}
}

// Stop stops the cleanup goroutine.
func (c *Cache) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.stopped {
		close(c.stopCh)
		c.stopped = true
	}
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || item.isExpired() {
		return nil, repository.ErrCacheMiss
	}

	// Return a copy to prevent mutation.
	result := make([]byte, len(item.value))
	copy(result, item.value)
	return result, nil
}

// Set stores a value with an optional TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = newItem(value, ttl)
	return nil
}

// SetNX sets a value only if the key doesn't exist.
func (c *Cache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, exists := c.items[key]; exists && !item.isExpired() {
		return false, nil
	}

	c.items[key] = newItem(value, ttl)
	return true, nil
}

// Delete removes a value by key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
	return nil
}

// Exists checks if a key exists.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists {
		return false, nil
	}

	return !item.isExpired(), nil
}

// Expire sets or updates the TTL for a key.
func (c *Cache) Expire(ctx context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[key]
	if !exists {
		return nil
	}

	if ttl > 0 {
		item.expiresAt = time.Now().Add(ttl)
		item.noExpiry = false
	} else {
		item.noExpiry = true
	}

	return nil
}

// DeleteMulti removes multiple values.
func (c *Cache) DeleteMulti(ctx context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		delete(c.items, key)
	}

	return nil
}

// Increment atomically increments an integer value.
func (c *Cache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var current int64
	if item, exists := c.items[key]; exists && !item.isExpired() && len(item.value) == 8 {
		current = int64(binary.LittleEndian.Uint64(item.value))
	}

	newValue := current + delta

	value := make([]byte, 8)
	binary.LittleEndian.PutUint64(value, uint64(newValue))

	c.items[key] = &cacheItem{
		value:    value,
		noExpiry: true,
	}

	return newValue, nil
}

func newItem(value []byte, ttl time.Duration) *cacheItem {
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	item := &cacheItem{value: valueCopy}
	if ttl > 0 {
		item.expiresAt = time.Now().Add(ttl)
	} else {
		item.noExpiry = true
	}
	return item
}

// Ensure Cache implements repository.Cache.
var _ repository.Cache = (*Cache)(nil)
