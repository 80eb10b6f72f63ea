package handlers

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	job "github.com/maheshrc27/sheetflow/internal/jobs"
	"github.com/maheshrc27/sheetflow/internal/models"
	"github.com/maheshrc27/sheetflow/internal/queue"
	"github.com/maheshrc27/sheetflow/internal/repository"
	"github.com/maheshrc27/sheetflow/internal/service"
)

type ScheduleHandler struct {
	scheduler   *job.PollingScheduler
	schedule    repository.ScheduleRepository
	media       service.MediaService
	AsynqClient *asynq.Client
	loc         *time.Location
}

func NewScheduleHandler(
	scheduler *job.PollingScheduler,
	schedule repository.ScheduleRepository,
	media service.MediaService,
	asynqClient *asynq.Client,
	loc *time.Location) *ScheduleHandler {
	return &ScheduleHandler{
		scheduler:   scheduler,
		schedule:    schedule,
		media:       media,
		AsynqClient: asynqClient,
		loc:         loc,
	}
}

// List returns the current view, fetching it first if nothing was loaded yet.
func (h *ScheduleHandler) List(c *fiber.Ctx) error {
	snap := h.scheduler.Snapshot()
	if snap.LastCheck == nil {
		if _, err := h.scheduler.Refresh(c.Context()); err != nil {
			return errorResponse(c, err)
		}
		snap = h.scheduler.Snapshot()
	}
	return c.Status(fiber.StatusOK).JSON(snap)
}

func (h *ScheduleHandler) Refresh(c *fiber.Ctx) error {
	if _, err := h.scheduler.Refresh(c.Context()); err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(h.scheduler.Snapshot())
}

// Create appends a post to the active profile's schedule. Media comes from
// uploaded files, listed URLs, or both; uploads go first.
func (h *ScheduleHandler) Create(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse form",
		})
	}

	scheduledTime, err := time.ParseInLocation("2006-01-02 15:04", c.FormValue("date")+" "+c.FormValue("time"), h.loc)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid date or time",
		})
	}

	profile, err := h.scheduler.ActiveProfile(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}

	var mediaURLs []string
	if files := form.File["files"]; len(files) > 0 {
		if len(files) > models.MaxMediaItems {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": fmt.Sprintf("A post can have at most %d media items", models.MaxMediaItems),
			})
		}
		uploaded, err := h.media.Upload(c.Context(), files)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		mediaURLs = append(mediaURLs, uploaded...)
	}
	mediaURLs = append(mediaURLs, splitMediaURLs(c.FormValue("media_urls"))...)

	post := &models.NewPost{
		ScheduledTime: scheduledTime,
		Theme:         c.FormValue("theme"),
		Title:         c.FormValue("title"),
		Caption:       c.FormValue("caption"),
		Script:        c.FormValue("script"),
		CTA:           c.FormValue("cta"),
		MediaURLs:     mediaURLs,
	}
	if err := h.schedule.Append(c.Context(), profile, post); err != nil {
		return errorResponse(c, err)
	}

	if _, err := h.scheduler.Refresh(c.Context()); err != nil {
		slog.Info(err.Error())
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "Post scheduled successfully",
	})
}

// Publish queues an immediate publish of one post. Without a task queue the
// post is published inline.
func (h *ScheduleHandler) Publish(c *fiber.Ctx) error {
	profile, err := h.scheduler.ActiveProfile(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}

	if h.AsynqClient == nil {
		publishedID, err := h.scheduler.PublishNow(c.Context(), profile.ID, c.Params("id"))
		if err != nil {
			return errorResponse(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"message":      "Post published",
			"published_id": publishedID,
		})
	}

	taskID, err := queue.EnqueuePublishNow(h.AsynqClient, queue.PublishNowPayload{
		ProfileID: profile.ID,
		PostID:    c.Params("id"),
	})
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Error queueing post",
		})
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Publish queued",
		"task_id": taskID,
	})
}

func (h *ScheduleHandler) Delete(c *fiber.Ctx) error {
	if err := h.scheduler.DeletePost(c.Context(), c.Params("id")); err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"message": "Post deleted",
	})
}

// Export downloads the active schedule as a workbook.
func (h *ScheduleHandler) Export(c *fiber.Ctx) error {
	result, err := h.scheduler.Refresh(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}

	buf, err := service.ExportSchedule(result.Posts, h.loc)
	if err != nil {
		return errorResponse(c, err)
	}

	c.Attachment(fmt.Sprintf("schedule-%s.xlsx", time.Now().In(h.loc).Format("20060102")))
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	return c.Send(buf.Bytes())
}

func splitMediaURLs(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	urls := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			urls = append(urls, f)
		}
	}
	return urls
}
