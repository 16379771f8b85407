package jobqueue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSweepLock_MinimumTTL(t *testing.T) {
	assert.Equal(t, time.Minute, NewSweepLock(nil, 0).ttl)
	assert.Equal(t, time.Minute, NewSweepLock(nil, 10*time.Second).ttl)
	assert.Equal(t, 15*time.Minute, NewSweepLock(nil, 15*time.Minute).ttl)
}

func TestSweepLock_Run(t *testing.T) {
	queue := newRedisQueue(t, nil)
	ctx := context.Background()
	lock := NewSweepLock(queue.client, time.Minute)

	err := lock.Run(ctx, func(ctx context.Context) error {
		// a second caller, as another instance would be, is turned away while the lock is held
		nested := lock.Run(ctx, func(context.Context) error {
			t.Error("nested sweep must not run")
			return nil
		})
		assert.ErrorIs(t, nested, ErrSweepLocked)
		return nil
	})
	require.NoError(t, err)

	exists, err := queue.client.Exists(ctx, SweepLockKey).Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "lock is released after the run")
}

func TestSweepLock_ReleasesOnError(t *testing.T) {
	queue := newRedisQueue(t, nil)
	ctx := context.Background()
	lock := NewSweepLock(queue.client, time.Minute)
	boom := errors.New("vendor unavailable")

	assert.ErrorIs(t, lock.Run(ctx, func(context.Context) error { return boom }), boom)

	exists, err := queue.client.Exists(ctx, SweepLockKey).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}
