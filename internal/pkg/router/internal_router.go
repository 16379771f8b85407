package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/SignFlow/app/controllers"
	"github.com/ManuelReschke/SignFlow/internal/pkg/middleware"
)

// InternalRouter serves the task push targets, the sweep and the metrics endpoint
type InternalRouter struct {
	tasks   *controllers.TaskController
	metrics fiber.Handler
	auth    fiber.Handler
}

func (h InternalRouter) InstallRouter(app *fiber.App) {
	internal := app.Group(middleware.InternalPrefix+"/signatures", h.auth)
	internal.Post("/tasks/send", h.tasks.HandleSend)
	internal.Post("/tasks/check-status", h.tasks.HandleCheckStatus)
	internal.Post("/tasks/upload", h.tasks.HandleUpload)
	internal.Post("/sweep", h.tasks.HandleSweep)
	internal.Get("/stats", h.tasks.HandleStats)

	if h.metrics != nil {
		app.Get("/metrics", h.auth, h.metrics)
	}
}

// NewInternalRouter protects every route with basic auth against a bcrypt hash
func NewInternalRouter(tasks *controllers.TaskController, metrics fiber.Handler, username, passwordHash string) *InternalRouter {
	return &InternalRouter{
		tasks:   tasks,
		metrics: metrics,
		auth:    middleware.RequireTaskAuth(username, passwordHash),
	}
}
