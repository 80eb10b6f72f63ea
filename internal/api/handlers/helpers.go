package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	job "github.com/maheshrc27/sheetflow/internal/jobs"
	"github.com/maheshrc27/sheetflow/internal/repository"
	"github.com/maheshrc27/sheetflow/internal/service"
)

func GetOperator(c *fiber.Ctx) string {
	operator, _ := c.Locals("operator").(string)
	return operator
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, job.ErrPublishInFlight), errors.Is(err, job.ErrAlreadyPublished):
		return fiber.StatusConflict
	case errors.Is(err, job.ErrPostNotFound), errors.Is(err, repository.ErrProfileNotFound), errors.Is(err, service.ErrNoActiveProfile):
		return fiber.StatusNotFound
	case errors.Is(err, repository.ErrInvalidPost), errors.Is(err, service.ErrInvalidInput):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func errorResponse(c *fiber.Ctx, err error) error {
	return c.Status(errorStatus(err)).JSON(fiber.Map{
		"error": err.Error(),
	})
}
