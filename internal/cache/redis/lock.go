package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/prn-tf/mediaboard/internal/repository"
)

// Lua scripts guarding against releasing or extending a lock another
// instance has since taken over. The token check and the mutation must
// be one atomic step on the server.
var (
	releaseScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		end
		return 0
	`)

	extendScript = redis.NewScript(`
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("PEXPIRE", KEYS[1], ARGV[2])
		end
		return 0
	`)
)

// Locker implements repository.DistributedLock backed by Redis.
// Each acquisition stores a random token so only the owner can release
// or extend the lock.
type Locker struct {
	client *redis.Client

	mu     sync.Mutex
	tokens map[string]string
}

// NewLocker creates a Redis-backed distributed lock.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{
		client: client,
		tokens: make(map[string]string),
	}
}

// Acquire attempts to acquire a lock.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock acquire: %w", err)
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.tokens[key] = token
	l.mu.Unlock()
	return true, nil
}

// AcquireWithRetry attempts to acquire a lock with retries.
func (l *Locker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	for attempt := 0; ; attempt++ {
		acquired, err := l.Acquire(ctx, key, ttl)
		if err != nil {
			return false, err
		}
		if acquired {
			return true, nil
		}
		if attempt >= maxRetries {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

// Release releases a lock if this instance owns it.
func (l *Locker) Release(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	token, ok := l.tokens[key]
	delete(l.tokens, key)
	l.mu.Unlock()
	if !ok {
		return false, nil
	}

	n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
	if err != nil {
		return false, fmt.Errorf("redis lock release: %w", err)
	}
	return n == 1, nil
}

// Extend extends the TTL of a held lock.
func (l *Locker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	token, ok := l.tokens[key]
	l.mu.Unlock()
	if !ok {
		return false, nil
	}

	n, err := extendScript.Run(ctx, l.client, []string{key}, token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis lock extend: %w", err)
	}
	if n == 0 {
		l.mu.Lock()
		delete(l.tokens, key)
		l.mu.Unlock()
		return false, nil
	}
	return true, nil
}

// IsHeld checks if the lock key exists in Redis.
func (l *Locker) IsHeld(ctx context.Context, key string) (bool, error) {
	n, err := l.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis lock check: %w", err)
	}
	return n > 0, nil
}

// Ensure Locker implements repository.DistributedLock.
var _ repository.DistributedLock = (*Locker)(nil)
