package lock

import (
	"context"
	"sync"
	"time"
)

// memLock is one held key with its expiry deadline.
type memLock struct {
	expiresAt time.Time
}

// MemoryLocker is the process-local Locker used when Redis is disabled.
// Record mutations and sweeps on a single-node deployment contend only
// within this process, so a map under a mutex is enough. Nothing
// survives a restart.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]memLock
}

// NewMemoryLocker creates a MemoryLocker and starts its expiry reaper.
func NewMemoryLocker() *MemoryLocker {
	ml := &MemoryLocker{held: make(map[string]memLock)}
	go ml.reapLoop()
	return ml
}

// reapLoop drops expired keys so abandoned locks do not accumulate.
// Acquire handles expiry on its own; this only bounds map growth.
func (m *MemoryLocker) reapLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.mu.Lock()
		now := time.Now()
		for key, l := range m.held {
			if now.After(l.expiresAt) {
				delete(m.held, key)
			}
		}
		m.mu.Unlock()
	}
}

// Acquire takes the key if it is free or its previous holder expired.
func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if l, ok := m.held[key]; ok && now.Before(l.expiresAt) {
		return false, nil
	}
	m.held[key] = memLock{expiresAt: now.Add(ttl)}
	return true, nil
}

// AcquireWithRetry retries Acquire up to maxRetries times, sleeping
// retryDelay between attempts.
func (m *MemoryLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	for i := 0; i <= maxRetries; i++ {
		acquired, err := m.Acquire(ctx, key, ttl)
		if err != nil || acquired {
			return acquired, err
		}
		if i == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return false, nil
}

// Release frees the key. Returns false when nothing was held.
func (m *MemoryLocker) Release(ctx context.Context, key string) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[key]; !ok {
		return false, nil
	}
	delete(m.held, key)
	return true, nil
}

// Extend pushes the expiry of a still-held key forward by ttl.
func (m *MemoryLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.held[key]
	if !ok || time.Now().After(l.expiresAt) {
		delete(m.held, key)
		return false, nil
	}
	m.held[key] = memLock{expiresAt: time.Now().Add(ttl)}
	return true, nil
}

// IsHeld reports whether the key is held and unexpired.
func (m *MemoryLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.held[key]
	if !ok {
		return false, nil
	}
	if time.Now().After(l.expiresAt) {
		delete(m.held, key)
		return false, nil
	}
	return true, nil
}

var _ Locker = (*MemoryLocker)(nil)
