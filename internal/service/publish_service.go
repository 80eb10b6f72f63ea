package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maheshrc27/sheetflow/internal/models"
	"github.com/maheshrc27/sheetflow/internal/repository"
	"github.com/maheshrc27/sheetflow/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// PublishService runs one publish attempt for one post and reconciles the
// outcome with the sheet.
type PublishService interface {
	PublishOne(ctx context.Context, profile *models.Profile, post *models.ScheduledPost, events chan<- PublishEvent) (string, error)
}

type publishService struct {
	ig       InstagramService
	schedule repository.ScheduleRepository
	cache    repository.PublishedCache
	state    *AppState
}

func NewPublishService(ig InstagramService, schedule repository.ScheduleRepository, cache repository.PublishedCache, state *AppState) PublishService {
	return &publishService{ig: ig, schedule: schedule, cache: cache, state: state}
}

// PublishOne publishes post and, on success, writes "published" to its
// status cell. A failed attempt leaves the sheet untouched so the post is due
// again next cycle. If the post went live but the status write failed the
// returned error is a *SyncError and the published id is still returned.
func (s *publishService) PublishOne(ctx context.Context, profile *models.Profile, post *models.ScheduledPost, events chan<- PublishEvent) (string, error) {
	ctx, span := otel.Tracer("sheetflow/publish").Start(ctx, "publish.post", trace.WithAttributes(
		attribute.String("profile.id", profile.ID),
		attribute.String("post.id", post.ID),
		attribute.Int("post.row", post.RowIndex),
		attribute.Int("post.media_items", len(post.MediaItems)),
	))
	defer span.End()

	start := time.Now()
	publishedID, err := s.ig.Publish(ctx, &PublishRequest{
		AccountID:   profile.AccountID,
		AccessToken: profile.AccessToken,
		Caption:     post.Caption,
		MediaItems:  post.MediaItems,
		Events:      events,
	})
	telemetry.PublishDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		telemetry.PublishAttempts.WithLabelValues(string(models.PostRunError)).Inc()
		s.log(ctx, profile, models.LogLevelError, fmt.Sprintf("Failed to publish row %d", post.RowIndex), err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("post.published_id", publishedID))

	if s.cache != nil {
		if _, err := s.cache.Add(ctx, profile.ID, post.ID); err != nil {
			slog.Info("unable to record published id", "post", post.ID, "error", err)
		}
	}

	if err := s.schedule.UpdateStatus(ctx, profile, post.RowIndex, models.PostStatusPublished); err != nil {
		syncErr := &SyncError{PublishedID: publishedID, RowIndex: post.RowIndex, Err: err}
		span.RecordError(syncErr)
		span.SetStatus(codes.Error, "status sync failed")
		telemetry.PublishAttempts.WithLabelValues(string(models.PostRunSyncError)).Inc()
		s.log(ctx, profile, models.LogLevelError, fmt.Sprintf("Posted row %d but status sync failed", post.RowIndex), syncErr.Error())
		return publishedID, syncErr
	}

	telemetry.PublishAttempts.WithLabelValues(string(models.PostRunSuccess)).Inc()
	s.log(ctx, profile, models.LogLevelSuccess, fmt.Sprintf("Published row %d", post.RowIndex), "Instagram media id "+publishedID)
	return publishedID, nil
}

func (s *publishService) log(ctx context.Context, profile *models.Profile, level models.LogLevel, message, details string) {
	if s.state == nil {
		slog.Info(message, "details", details)
		return
	}
	s.state.Log(ctx, profile, level, message, details)
}
