package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/SignFlow/internal/pkg/apperrors"
)

// StatusForError maps an error kind to its HTTP status
func StatusForError(err error) int {
	switch apperrors.KindOf(err) {
	case apperrors.KindValidation:
		return fiber.StatusBadRequest
	case apperrors.KindNotFound:
		return fiber.StatusNotFound
	case apperrors.KindInvalidState, apperrors.KindConflict:
		return fiber.StatusConflict
	case apperrors.KindProvider:
		return fiber.StatusBadGateway
	case apperrors.KindStorage:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// RespondError writes the JSON error body used by every endpoint
func RespondError(c *fiber.Ctx, err error) error {
	status := StatusForError(err)
	code := string(apperrors.KindOf(err))
	message := err.Error()
	if code == "" {
		code = "internal_server_error"
	}
	if status >= fiber.StatusInternalServerError {
		log.Errorf("[HTTP] %s %s failed: %v", c.Method(), c.Path(), err)
		if apperrors.KindOf(err) == "" {
			message = "Internal server error"
		}
	}
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "bad_request", "message": message})
}
