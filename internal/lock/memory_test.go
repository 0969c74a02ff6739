package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLockerAcquireRelease(t *testing.T) {
	ml := NewMemoryLocker()
	ctx := context.Background()
	key := Keys.MediaMutate(7)

	ok, err := ml.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = ml.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	held, err := ml.IsHeld(ctx, key)
	require.NoError(t, err)
	require.True(t, held)

	released, err := ml.Release(ctx, key)
	require.NoError(t, err)
	require.True(t, released)

	released, err = ml.Release(ctx, key)
	require.NoError(t, err)
	require.False(t, released)
}

func TestMemoryLockerExpiredLockIsFree(t *testing.T) {
	ml := NewMemoryLocker()
	ctx := context.Background()
	key := Keys.Sweep()

	ok, err := ml.Acquire(ctx, key, time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)

	held, err := ml.IsHeld(ctx, key)
	require.NoError(t, err)
	require.False(t, held)

	ok, err = ml.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryLockerExtend(t *testing.T) {
	ml := NewMemoryLocker()
	ctx := context.Background()
	key := Keys.IngestHash("abc123")

	extended, err := ml.Extend(ctx, key, time.Minute)
	require.NoError(t, err)
	require.False(t, extended)

	ok, err := ml.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	extended, err = ml.Extend(ctx, key, time.Hour)
	require.NoError(t, err)
	require.True(t, extended)
}

func TestMemoryLockerAcquireWithRetry(t *testing.T) {
	ml := NewMemoryLocker()
	ctx := context.Background()
	key := Keys.MediaMutate(9)

	ok, err := ml.Acquire(ctx, key, 20*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	// Holder expires mid-retry, so a later attempt succeeds.
	ok, err = ml.AcquireWithRetry(ctx, key, time.Minute, 5, 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = ml.AcquireWithRetry(cancelled, key, time.Minute, 2, time.Millisecond)
	require.ErrorIs(t, err, context.Canceled)
}
