package lock

import (
	"context"
	"time"
)

// NoOpLocker grants every request without tracking anything. It exists
// for tests and tooling where contention over records cannot happen.
type NoOpLocker struct{}

// NewNoOpLocker creates a NoOpLocker.
func NewNoOpLocker() *NoOpLocker {
	return &NoOpLocker{}
}

func (n *NoOpLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, ctx.Err()
}

func (n *NoOpLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	return true, ctx.Err()
}

func (n *NoOpLocker) Release(ctx context.Context, key string) (bool, error) {
	return true, ctx.Err()
}

func (n *NoOpLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, ctx.Err()
}

// IsHeld always reports false; nothing is ever tracked.
func (n *NoOpLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	return false, ctx.Err()
}

var _ Locker = (*NoOpLocker)(nil)
