package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const defaultTimeout = 2 * time.Second

// Check tests one dependency and returns nil when it is usable
type Check func(ctx context.Context) error

// CheckResult is the outcome of a single check
type CheckResult struct {
	Healthy   bool   `json:"healthy"`
	Error     string `json:"error,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

// Report aggregates all checks of one run
type Report struct {
	Healthy   bool                   `json:"healthy"`
	Checks    map[string]CheckResult `json:"checks"`
	CheckedAt time.Time              `json:"checked_at"`
}

// Checker runs named checks concurrently
type Checker struct {
	checks  map[string]Check
	timeout time.Duration
}

// NewChecker creates a checker; a non-positive timeout falls back to 2s
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Checker{checks: make(map[string]Check), timeout: timeout}
}

// Register adds a check under name, replacing any previous one
func (c *Checker) Register(name string, check Check) *Checker {
	c.checks[name] = check
	return c
}

// Names returns the registered check names in order
func (c *Checker) Names() []string {
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes every check with its own timeout
func (c *Checker) Run(ctx context.Context) Report {
	report := Report{Healthy: true, Checks: make(map[string]CheckResult, len(c.checks)), CheckedAt: time.Now().UTC()}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for name, check := range c.checks {
		wg.Add(1)
		go func(name string, check Check) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			start := time.Now()
			err := check(checkCtx)
			result := CheckResult{Healthy: err == nil, LatencyMs: time.Since(start).Milliseconds()}
			if err != nil {
				result.Error = err.Error()
				log.Warnf("[Health] %s check failed: %v", name, err)
			}

			mu.Lock()
			report.Checks[name] = result
			if err != nil {
				report.Healthy = false
			}
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()
	return report
}

// Handler answers 200 when every check passes and 503 otherwise
func (c *Checker) Handler() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		report := c.Run(ctx.UserContext())
		status := fiber.StatusOK
		if !report.Healthy {
			status = fiber.StatusServiceUnavailable
		}
		return ctx.Status(status).JSON(report)
	}
}

// DatabaseCheck pings the connection pool behind db
func DatabaseCheck(db *gorm.DB) Check {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

// RedisCheck pings the queue and cache server
func RedisCheck(client *redis.Client) Check {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
