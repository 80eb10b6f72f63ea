package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/sheetflow/internal/service"
)

type LogHandler struct {
	state *service.AppState
}

func NewLogHandler(state *service.AppState) *LogHandler {
	return &LogHandler{state: state}
}

func (h *LogHandler) List(c *fiber.Ctx) error {
	logs := h.state.Logs()
	if limit := c.QueryInt("limit", 0); limit > 0 && limit < len(logs) {
		logs = logs[:limit]
	}
	return c.Status(fiber.StatusOK).JSON(logs)
}

func (h *LogHandler) Clear(c *fiber.Ctx) error {
	if err := h.state.ClearLogs(c.Context()); err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Logs cleared",
	})
}
