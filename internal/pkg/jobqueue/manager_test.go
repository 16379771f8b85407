package jobqueue

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager(t *testing.T) {
	queue := NewQueue(nil, nil)
	manager := NewManager(queue, nil, time.Minute)

	assert.Same(t, queue, manager.GetQueue())
	assert.NotNil(t, manager.stopCh)
	assert.False(t, manager.IsRunning())
}

func TestManager_IsRunning(t *testing.T) {
	manager := NewManager(NewQueue(nil, nil), nil, 0)

	assert.False(t, manager.IsRunning())

	manager.mu.Lock()
	manager.running = true
	manager.mu.Unlock()

	assert.True(t, manager.IsRunning())

	manager.mu.Lock()
	manager.running = false
	manager.mu.Unlock()
}

func TestManager_StopWithoutStart(t *testing.T) {
	manager := NewManager(NewQueue(nil, nil), nil, 0)
	assert.NotPanics(t, manager.Stop)
	assert.False(t, manager.IsRunning())
}

func TestManager_RunSweepOnce_NilSweep(t *testing.T) {
	manager := NewManager(NewQueue(nil, nil), nil, time.Minute)
	assert.NoError(t, manager.RunSweepOnce(context.Background()))
}

func TestManager_RunSweepOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	queue := newRedisQueue(t, nil, WithMetrics(metrics))
	ctx := context.Background()

	var runs int32
	manager := NewManager(queue, func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}, time.Minute)

	require.NoError(t, manager.RunSweepOnce(ctx))
	require.NoError(t, manager.RunSweepOnce(ctx), "lock is released after each run")
	assert.Equal(t, int32(2), atomic.LoadInt32(&runs))
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.Sweeps.WithLabelValues("ok")))

	exists, err := queue.client.Exists(ctx, SweepLockKey).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)
}

func TestManager_RunSweepOnce_Locked(t *testing.T) {
	queue := newRedisQueue(t, nil)
	ctx := context.Background()

	require.NoError(t, queue.client.Set(ctx, SweepLockKey, "other-instance", time.Minute).Err())

	called := false
	manager := NewManager(queue, func(ctx context.Context) error {
		called = true
		return nil
	}, time.Minute)

	err := manager.RunSweepOnce(ctx)
	assert.ErrorIs(t, err, ErrSweepLocked)
	assert.False(t, called)

	owner, err := queue.client.Get(ctx, SweepLockKey).Result()
	require.NoError(t, err)
	assert.Equal(t, "other-instance", owner, "a foreign lock is never released")
}

func TestManager_RunSweepOnce_PropagatesError(t *testing.T) {
	queue := newRedisQueue(t, nil)
	boom := errors.New("database unavailable")

	manager := NewManager(queue, func(ctx context.Context) error { return boom }, time.Minute)
	assert.ErrorIs(t, manager.RunSweepOnce(context.Background()), boom)
}

func TestManager_StartRunsSweepTicker(t *testing.T) {
	queue := newRedisQueue(t, &Config{Workers: 1})

	swept := make(chan struct{}, 4)
	manager := NewManager(queue, func(ctx context.Context) error {
		select {
		case swept <- struct{}{}:
		default:
		}
		return nil
	}, 50*time.Millisecond)

	manager.Start()
	assert.True(t, manager.IsRunning())

	select {
	case <-swept:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep ticker never fired")
	}

	manager.Stop()
	assert.False(t, manager.IsRunning())

	manager.Start()
	assert.True(t, manager.IsRunning(), "manager can be restarted")
	manager.Stop()
}
