package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SignFlow/internal/pkg/health"
)

// HealthRouter exposes the unauthenticated readiness check
type HealthRouter struct {
	checker *health.Checker
}

func (h HealthRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", h.checker.Handler())
}

func NewHealthRouter(checker *health.Checker) *HealthRouter {
	return &HealthRouter{checker: checker}
}
