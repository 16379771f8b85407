package jobqueue

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SweepLockKey guards the sweep so only one instance runs it at a time
const SweepLockKey = "sweep_lock"

const minSweepLockTTL = time.Minute

// ErrSweepLocked is returned when another instance holds the sweep lock
var ErrSweepLocked = errors.New("sweep already running elsewhere")

var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SweepLock is a Redis lock shared by every path that can start a sweep
type SweepLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSweepLock creates the lock; the TTL is at least one minute
func NewSweepLock(client *redis.Client, ttl time.Duration) *SweepLock {
	if ttl < minSweepLockTTL {
		ttl = minSweepLockTTL
	}
	return &SweepLock{client: client, ttl: ttl}
}

// Run calls fn while holding the lock, or returns ErrSweepLocked without calling it.
// Only the token written by this call is released.
func (l *SweepLock) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, SweepLockKey, token, l.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrSweepLocked
	}
	defer func() {
		if err := releaseLockScript.Run(context.Background(), l.client, []string{SweepLockKey}, token).Err(); err != nil {
			log.Warnf("[JobQueue] Releasing sweep lock failed: %v", err)
		}
	}()

	return fn(ctx)
}
