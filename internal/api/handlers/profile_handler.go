package handlers

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	job "github.com/maheshrc27/sheetflow/internal/jobs"
	"github.com/maheshrc27/sheetflow/internal/models"
	"github.com/maheshrc27/sheetflow/internal/repository"
	"github.com/maheshrc27/sheetflow/internal/service"
	"github.com/maheshrc27/sheetflow/internal/transfer"
)

type ProfileHandler struct {
	profiles  repository.ProfileRepository
	scheduler *job.PollingScheduler
	ig        service.InstagramService
	state     *service.AppState
}

func NewProfileHandler(
	profiles repository.ProfileRepository,
	scheduler *job.PollingScheduler,
	ig service.InstagramService,
	state *service.AppState) *ProfileHandler {
	return &ProfileHandler{
		profiles:  profiles,
		scheduler: scheduler,
		ig:        ig,
		state:     state,
	}
}

type profileResponse struct {
	models.Profile
	HasCredentials bool `json:"has_credentials"`
	Active         bool `json:"active"`
}

func (h *ProfileHandler) List(c *fiber.Ctx) error {
	profiles, err := h.profiles.List(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}

	activeID := ""
	if active, err := h.scheduler.ActiveProfile(c.Context()); err == nil {
		activeID = active.ID
	}

	resp := make([]profileResponse, 0, len(profiles))
	for i := range profiles {
		resp = append(resp, profileResponse{
			Profile:        profiles[i],
			HasCredentials: profiles[i].HasCredentials(),
			Active:         profiles[i].ID == activeID,
		})
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *ProfileHandler) SetActive(c *fiber.Ctx) error {
	var req transfer.ActiveProfileRequest
	if err := c.BodyParser(&req); err != nil || req.ProfileID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "profile_id is required",
		})
	}

	profile, err := h.scheduler.SelectProfile(c.Context(), req.ProfileID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(profile)
}

// Init creates any missing tabs with their headers and stamps LAST_SYNC.
func (h *ProfileHandler) Init(c *fiber.Ctx) error {
	if err := h.profiles.EnsureLayout(c.Context()); err != nil {
		h.state.Log(c.Context(), nil, models.LogLevelError, "Failed to initialize spreadsheet", err.Error())
		return errorResponse(c, err)
	}
	if err := h.profiles.MarkSynced(c.Context(), time.Now()); err != nil {
		slog.Info(err.Error())
	}

	h.state.Log(c.Context(), nil, models.LogLevelSuccess, "Spreadsheet initialized", "")
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Spreadsheet initialized",
	})
}

// Account asks the Graph API which business account the profile's token
// belongs to, so an operator can check the Profiles tab is filled in right.
func (h *ProfileHandler) Account(c *fiber.Ctx) error {
	profile, err := h.profiles.Get(c.Context(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	if profile.AccessToken == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Profile has no access token",
		})
	}

	accountID, err := h.ig.LookupBusinessAccount(c.Context(), profile.AccessToken)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"profile_id": profile.ID,
		"account_id": accountID,
		"matches":    accountID == profile.AccountID,
	})
}
