package handlers

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/sheetflow/configs"
	"github.com/maheshrc27/sheetflow/internal/models"
)

type Sweeper interface {
	Run(ctx context.Context) (*models.SweepReport, error)
}

type CronHandler struct {
	cfg    config.Config
	runner Sweeper
}

func NewCronHandler(cfg config.Config, runner Sweeper) *CronHandler {
	return &CronHandler{cfg: cfg, runner: runner}
}

// Post runs one sweep over every profile. When CRON_SECRET is set the caller
// must present it as a bearer token or the "key" query parameter.
func (h *CronHandler) Post(c *fiber.Ctx) error {
	if !h.authorized(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	if h.cfg.StoreBackend == "sheets" && h.cfg.Sheets.SpreadsheetID == "" {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Missing SPREADSHEET_ID environment variable",
		})
	}

	report, err := h.runner.Run(c.Context())
	if err != nil {
		slog.Error("cron sweep failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if len(report.Results) == 0 {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "No profiles found in Profiles tab",
		})
	}

	return c.Status(fiber.StatusOK).JSON(report)
}

func (h *CronHandler) authorized(c *fiber.Ctx) bool {
	secret := h.cfg.CronSecret
	if secret == "" {
		return true
	}
	return c.Get(fiber.HeaderAuthorization) == "Bearer "+secret || c.Query("key") == secret
}
