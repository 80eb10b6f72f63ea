package handlers

import (
	"github.com/gofiber/fiber/v2"
	job "github.com/maheshrc27/sheetflow/internal/jobs"
)

type AutomationHandler struct {
	scheduler *job.PollingScheduler
}

func NewAutomationHandler(scheduler *job.PollingScheduler) *AutomationHandler {
	return &AutomationHandler{scheduler: scheduler}
}

func (h *AutomationHandler) Status(c *fiber.Ctx) error {
	snap := h.scheduler.Snapshot()
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"running":       snap.Running,
		"processing_id": snap.ProcessingID,
		"phase":         snap.Phase,
		"profile_id":    snap.ProfileID,
		"last_check":    snap.LastCheck,
	})
}

func (h *AutomationHandler) Start(c *fiber.Ctx) error {
	if err := h.scheduler.Start(c.Context()); err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Automation started",
	})
}

func (h *AutomationHandler) Stop(c *fiber.Ctx) error {
	if err := h.scheduler.Stop(c.Context()); err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Automation stopped",
	})
}
