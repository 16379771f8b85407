package router

import (
	"net"
	"strconv"

	"github.com/gofiber/storage/redis"

	"github.com/ManuelReschke/SignFlow/internal/pkg/cache"
	"github.com/ManuelReschke/SignFlow/internal/pkg/env"
)

// NewLimiterStorage returns Redis storage for rate limit counters, on its own database so
// counters never mix with queue keys.
func NewLimiterStorage() *redis.Storage {
	opts := cache.Options()
	host := "localhost"
	port := 6379
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: env.GetEnvInt("RATE_LIMIT_CACHE_DB", 1),
		Reset:    false,
	})
}
