package apiv1

import (
	"github.com/gofiber/fiber/v2"

	// Delegate to the controllers to keep behavior consistent with the internal endpoints
	"github.com/ManuelReschke/SignFlow/app/controllers"
)

// APIServer implements the ServerInterface
type APIServer struct {
	events *controllers.SignatureEventController
}

// NewAPIServer creates a new API server instance
func NewAPIServer(events *controllers.SignatureEventController) *APIServer {
	return &APIServer{events: events}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	response := Pong{
		Ping: "pong",
	}

	return c.Status(fiber.StatusOK).JSON(response)
}

// PostSignatureEvent creates an event and schedules its send task
func (s *APIServer) PostSignatureEvent(c *fiber.Ctx) error {
	return s.events.HandleCreate(c)
}

// GetSignatureEvent returns the projection of one event
func (s *APIServer) GetSignatureEvent(c *fiber.Ctx, id string) error {
	return s.events.HandleGet(c, id)
}

// ListSignatureEvents returns a page of projections
func (s *APIServer) ListSignatureEvents(c *fiber.Ctx, params ListSignatureEventsParams) error {
	return s.events.HandleList(c, params.Status, params.Page, params.PerPage)
}
