package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	apiv1 "github.com/ManuelReschke/SignFlow/internal/api/v1"
	"github.com/ManuelReschke/SignFlow/internal/pkg/middleware"
)

type ApiRouter struct {
	server         *apiv1.APIServer
	limiterStorage fiber.Storage
	limitMax       int
	limitWindow    time.Duration
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", middleware.RateLimit(h.limiterStorage, h.limitMax, h.limitWindow))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiv1.RegisterHandlers(v1, h.server)
}

// NewApiRouter creates the public API router. A nil storage keeps rate limit counters in memory.
func NewApiRouter(server *apiv1.APIServer, limiterStorage fiber.Storage, max int, window time.Duration) *ApiRouter {
	if max <= 0 {
		max = 60
	}
	if window <= 0 {
		window = time.Minute
	}
	return &ApiRouter{server: server, limiterStorage: limiterStorage, limitMax: max, limitWindow: window}
}
