package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func TestNewChecker_DefaultTimeout(t *testing.T) {
	assert.Equal(t, defaultTimeout, NewChecker(0).timeout)
	assert.Equal(t, time.Second, NewChecker(time.Second).timeout)
}

func TestRun(t *testing.T) {
	tests := []struct {
		name    string
		checks  map[string]Check
		healthy bool
	}{
		{"no checks", map[string]Check{}, true},
		{"all pass", map[string]Check{"database": ok, "redis": ok}, true},
		{"one fails", map[string]Check{"database": ok, "redis": func(context.Context) error { return errors.New("connection refused") }}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewChecker(time.Second)
			for name, check := range tt.checks {
				checker.Register(name, check)
			}

			report := checker.Run(context.Background())
			assert.Equal(t, tt.healthy, report.Healthy)
			assert.Len(t, report.Checks, len(tt.checks))
			assert.False(t, report.CheckedAt.IsZero())
		})
	}
}

func TestRun_TimeoutIsApplied(t *testing.T) {
	checker := NewChecker(20 * time.Millisecond).Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	report := checker.Run(context.Background())
	require.False(t, report.Healthy)
	assert.Equal(t, context.DeadlineExceeded.Error(), report.Checks["slow"].Error)
}

func TestNames(t *testing.T) {
	checker := NewChecker(0).Register("redis", ok).Register("database", ok)
	assert.Equal(t, []string{"database", "redis"}, checker.Names())
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name   string
		check  Check
		status int
	}{
		{"healthy", ok, fiber.StatusOK},
		{"unhealthy", func(context.Context) error { return errors.New("down") }, fiber.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/healthz", NewChecker(time.Second).Register("database", tt.check).Handler())

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/healthz", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			var report Report
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
			assert.Contains(t, report.Checks, "database")
		})
	}
}
