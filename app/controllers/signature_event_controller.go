package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SignFlow/app/models"
	"github.com/ManuelReschke/SignFlow/internal/pkg/signature"
)

const (
	defaultPerPage = 50
	maxPerPage     = 200
)

// SignatureEventList is one page of events
type SignatureEventList struct {
	Items   []*models.SignatureEventResponse `json:"items"`
	Page    int                              `json:"page"`
	PerPage int                              `json:"per_page"`
	Total   int64                            `json:"total"`
}

// SignatureEventController serves creation and read access to signature events
type SignatureEventController struct {
	service    *signature.Service
	dispatcher signature.Dispatcher
}

func NewSignatureEventController(service *signature.Service, dispatcher signature.Dispatcher) *SignatureEventController {
	return &SignatureEventController{service: service, dispatcher: dispatcher}
}

// HandleCreate stores a PENDING event and schedules its send task.
func (sc *SignatureEventController) HandleCreate(c *fiber.Ctx) error {
	var req models.CreateSignatureEventRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid JSON body")
	}

	ctx := c.UserContext()
	event, err := sc.service.CreateEvent(ctx, &req)
	if err != nil {
		return RespondError(c, err)
	}

	// A lost send is picked up again by the sweep once the event is stale.
	if err := sc.dispatcher.ScheduleSend(ctx, event.ID, 0); err != nil {
		log.Errorf("[HTTP] Scheduling send for event %s failed: %v", event.ID, err)
	}

	return c.Status(fiber.StatusCreated).JSON(event.ToResponse())
}

// HandleGet returns one event by id
func (sc *SignatureEventController) HandleGet(c *fiber.Ctx, id string) error {
	if id == "" {
		return badRequest(c, "id missing")
	}
	event, err := sc.service.FindByID(c.UserContext(), id)
	if err != nil {
		return RespondError(c, err)
	}
	return c.JSON(event.ToResponse())
}

// HandleList returns a page of events, optionally filtered by status
func (sc *SignatureEventController) HandleList(c *fiber.Ctx, status string, page, perPage int) error {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	offset := (page - 1) * perPage
	ctx := c.UserContext()

	var (
		events []models.SignatureEvent
		total  int64
		err    error
	)
	if status == "" {
		events, total, err = sc.service.List(ctx, offset, perPage)
	} else {
		parsed, perr := models.ParseSignatureStatus(status)
		if perr != nil {
			return badRequest(c, perr.Error())
		}
		events, err = sc.service.FindByStatus(ctx, parsed, offset, perPage)
		if err == nil {
			var counts map[models.SignatureStatus]int64
			counts, err = sc.service.CountByStatus(ctx)
			total = counts[parsed]
		}
	}
	if err != nil {
		return RespondError(c, err)
	}

	items := make([]*models.SignatureEventResponse, 0, len(events))
	for i := range events {
		items = append(items, events[i].ToResponse())
	}
	return c.JSON(SignatureEventList{Items: items, Page: page, PerPage: perPage, Total: total})
}
