package repository

import (
	"context"
	"strconv"
	"time"
)

// =============================================================================
// Cache Interface (Redis)
// =============================================================================

// Cache defines the interface for caching operations.
// Implemented by Redis for multi-instance deployments and by an
// in-memory cache for embedded ones.
type Cache interface {
	// Get retrieves a value by key.
	// Returns ErrCacheMiss if the key doesn't exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with an optional TTL.
	// If ttl is 0, the value doesn't expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX sets a value only if the key doesn't exist.
	// Returns true if the value was set, false if the key already exists.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes a value by key.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Expire sets or updates the TTL for a key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// DeleteMulti removes multiple values.
	DeleteMulti(ctx context.Context, keys ...string) error

	// Increment atomically increments an integer value.
	Increment(ctx context.Context, key string, delta int64) (int64, error)
}

// =============================================================================
// Distributed Lock Interface (Redis)
// =============================================================================

// DistributedLock defines the interface for distributed locking.
// Used to coordinate mutations across multiple server instances.
type DistributedLock interface {
	// Acquire attempts to acquire a lock.
	// Returns true if the lock was acquired, false if it's held by another process.
	// The lock will automatically expire after the specified TTL.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// AcquireWithRetry attempts to acquire a lock with retries.
	// Will retry up to maxRetries times with retryDelay between attempts.
	AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error)

	// Release releases a lock.
	// Returns true if the lock was released, false if it wasn't held.
	Release(ctx context.Context, key string) (bool, error)

	// Extend extends the TTL of a held lock.
	// Returns true if the lock was extended, false if it's not held.
	Extend(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsHeld checks if the lock is currently held.
	IsHeld(ctx context.Context, key string) (bool, error)
}

// Lock is a convenience wrapper for a specific lock instance.
type Lock struct {
	locker DistributedLock
	key    string
	held   bool
}

// NewLock creates a new Lock instance.
func NewLock(locker DistributedLock, key string) *Lock {
	return &Lock{
		locker: locker,
		key:    key,
		held:   false,
	}
}

// Acquire attempts to acquire the lock.
func (l *Lock) Acquire(ctx context.Context, ttl time.Duration) (bool, error) {
	acquired, err := l.locker.Acquire(ctx, l.key, ttl)
	if err != nil {
		return false, err
	}
	l.held = acquired
	return acquired, nil
}

// Release releases the lock.
func (l *Lock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	_, err := l.locker.Release(ctx, l.key)
	l.held = false
	return err
}

// Extend extends the lock TTL.
func (l *Lock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.held {
		return nil
	}
	extended, err := l.locker.Extend(ctx, l.key, ttl)
	if err != nil {
		return err
	}
	if !extended {
		l.held = false
	}
	return nil
}

// IsHeld returns whether the lock is held.
func (l *Lock) IsHeld() bool {
	return l.held
}

// =============================================================================
// Common Lock Keys
// =============================================================================

// LockKey generates a lock key for common scenarios.
type LockKey struct{}

// MediaMutate returns a lock key serializing replace and delete for one
// record. Prevents a replacement racing a concurrent delete or another
// replacement of the same ID.
func (LockKey) MediaMutate(id int64) string {
	return "lock:media:mutate:" + strconv.FormatInt(id, 10)
}

// IngestHash returns a lock key serializing first-time ingestion of one
// content hash across instances.
func (LockKey) IngestHash(hash string) string {
	return "lock:media:ingest:" + hash
}

// Sweep returns the lock key for the orphan sweep.
func (LockKey) Sweep() string {
	return "lock:sweep:orphans"
}

// =============================================================================
// Common Cache Keys
// =============================================================================

// CacheKey generates cache keys for common scenarios.
type CacheKey struct{}

// MediaByID returns a cache key for a media record by ID.
func (CacheKey) MediaByID(id int64) string {
	return "cache:media:id:" + strconv.FormatInt(id, 10)
}

// MediaByHash returns a cache key for a media record by content hash.
func (CacheKey) MediaByHash(hash string) string {
	return "cache:media:hash:" + hash
}
