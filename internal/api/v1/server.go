package apiv1

import (
	"github.com/gofiber/fiber/v2"
)

// Pong defines model for Pong.
type Pong struct {
	Ping string `json:"ping"`
}

// ListSignatureEventsParams defines parameters for ListSignatureEvents.
type ListSignatureEventsParams struct {
	Status  string `query:"status"`
	Page    int    `query:"page"`
	PerPage int    `query:"per_page"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// (GET /ping)
	GetPing(c *fiber.Ctx) error
	// (GET /signature-events)
	ListSignatureEvents(c *fiber.Ctx, params ListSignatureEventsParams) error
	// (POST /signature-events)
	PostSignatureEvent(c *fiber.Ctx) error
	// (GET /signature-events/{id})
	GetSignatureEvent(c *fiber.Ctx, id string) error
}

// ServerInterfaceWrapper converts contexts to parameters.
type ServerInterfaceWrapper struct {
	Handler ServerInterface
}

// GetPing operation middleware
func (siw *ServerInterfaceWrapper) GetPing(c *fiber.Ctx) error {
	return siw.Handler.GetPing(c)
}

// ListSignatureEvents operation middleware
func (siw *ServerInterfaceWrapper) ListSignatureEvents(c *fiber.Ctx) error {
	var params ListSignatureEventsParams
	if err := c.QueryParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": "Invalid query parameters"})
	}
	return siw.Handler.ListSignatureEvents(c, params)
}

// PostSignatureEvent operation middleware
func (siw *ServerInterfaceWrapper) PostSignatureEvent(c *fiber.Ctx) error {
	return siw.Handler.PostSignatureEvent(c)
}

// GetSignatureEvent operation middleware
func (siw *ServerInterfaceWrapper) GetSignatureEvent(c *fiber.Ctx) error {
	return siw.Handler.GetSignatureEvent(c, c.Params("id"))
}

// RegisterHandlers creates http.Handler with routing matching OpenAPI spec.
func RegisterHandlers(router fiber.Router, si ServerInterface) {
	wrapper := ServerInterfaceWrapper{Handler: si}

	router.Get("/ping", wrapper.GetPing)
	router.Get("/signature-events", wrapper.ListSignatureEvents)
	router.Post("/signature-events", wrapper.PostSignatureEvent)
	router.Get("/signature-events/:id", wrapper.GetSignatureEvent)
}
