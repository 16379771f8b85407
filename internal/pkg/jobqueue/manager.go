package jobqueue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// SweepFunc runs one reconciliation pass
type SweepFunc func(ctx context.Context) error

// Manager runs the job queue and the periodic sweep
type Manager struct {
	queue         *Queue
	sweep         SweepFunc
	lock          *SweepLock
	sweepInterval time.Duration
	sweepTicker   *time.Ticker
	cancel        context.CancelFunc
	stopCh        chan struct{}
	wg            sync.WaitGroup
	mu            sync.Mutex
	running       bool
}

// NewManager wires a queue and a sweep. A nil sweep or non-positive interval disables the ticker.
func NewManager(queue *Queue, sweep SweepFunc, sweepInterval time.Duration) *Manager {
	return &Manager{
		queue:         queue,
		sweep:         sweep,
		lock:          NewSweepLock(queue.client, sweepInterval),
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.sweep != nil && m.sweepInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		m.cancel = cancel
		m.sweepTicker = time.NewTicker(m.sweepInterval)
		m.wg.Add(1)
		go m.sweepWorker(ctx, m.sweepTicker, m.stopCh)
		log.Infof("[JobQueue Manager] Sweep scheduled every %s", m.sweepInterval)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.sweepTicker != nil {
		m.sweepTicker.Stop()
		m.sweepTicker = nil
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) sweepWorker(ctx context.Context, ticker *time.Ticker, stopCh chan struct{}) {
	defer m.wg.Done()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			err := m.RunSweepOnce(ctx)
			switch {
			case err == nil:
			case errors.Is(err, ErrSweepLocked):
				log.Debugf("[JobQueue Manager] Skipping sweep: %v", err)
			case errors.Is(err, context.Canceled):
				return
			default:
				log.Errorf("[JobQueue Manager] Sweep failed: %v", err)
			}
		}
	}
}

// RunSweepOnce runs the sweep under the Redis lock
func (m *Manager) RunSweepOnce(ctx context.Context) error {
	if m.sweep == nil {
		return nil
	}

	err := m.lock.Run(ctx, m.sweep)
	switch {
	case err == nil:
		m.queue.metrics.sweep("ok")
	case errors.Is(err, ErrSweepLocked):
		m.queue.metrics.sweep("locked")
	default:
		m.queue.metrics.sweep("error")
	}
	return err
}
