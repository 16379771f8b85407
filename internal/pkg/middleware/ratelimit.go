package middleware

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// InternalPrefix is exempt from the public rate limit
const InternalPrefix = "/api/internal"

// RateLimit limits public API requests per client IP. A nil storage keeps counters in memory.
func RateLimit(storage fiber.Storage, max int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		Storage:    storage,
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), InternalPrefix)
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too_many_requests", "message": "Rate limit exceeded"})
		},
	})
}
