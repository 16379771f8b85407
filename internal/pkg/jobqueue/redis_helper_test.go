package jobqueue

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/SignFlow/internal/pkg/cache"
)

// queue tests own this DB and flush it before and after each test
const testRedisDB = 14

// testRedisAddrs lists the configured cache first, then the compose service and localhost.
func testRedisAddrs() []string {
	addrs := []string{cache.Options().Addr}
	for _, host := range []string{"signflow-cache", "localhost"} {
		addr := net.JoinHostPort(host, "6379")
		if addr != addrs[0] {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

// newTestRedisClient connects to the first reachable Redis or skips the test.
func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	var lastErr error
	for _, addr := range testRedisAddrs() {
		for _, password := range []string{cache.Options().Password, "signflow"} {
			client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: testRedisDB})

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			err := client.Ping(ctx).Err()
			if err == nil {
				err = client.FlushDB(ctx).Err()
			}
			cancel()
			if err != nil {
				lastErr = err
				_ = client.Close()
				continue
			}

			t.Cleanup(func() {
				_ = client.FlushDB(context.Background()).Err()
				_ = client.Close()
			})
			return client
		}
	}

	t.Skipf("Skipping Redis-dependent test: no reachable Redis (%v)", lastErr)
	return nil
}

func newRedisQueue(t *testing.T, cfg *Config, opts ...Option) *Queue {
	t.Helper()
	return NewQueue(newTestRedisClient(t), cfg, opts...)
}
