package job

import (
	"context"
	"errors"
	"time"

	"github.com/maheshrc27/sheetflow/internal/models"
	"github.com/maheshrc27/sheetflow/internal/repository"
	"github.com/maheshrc27/sheetflow/internal/service"
	"github.com/maheshrc27/sheetflow/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// BatchCronRunner sweeps every profile and publishes all of its due posts.
// It keeps no state between runs.
type BatchCronRunner struct {
	profiles  repository.ProfileRepository
	schedule  repository.ScheduleRepository
	publisher service.PublishService
	now       func() time.Time
}

func NewBatchCronRunner(
	profiles repository.ProfileRepository,
	schedule repository.ScheduleRepository,
	publisher service.PublishService) *BatchCronRunner {
	return &BatchCronRunner{
		profiles:  profiles,
		schedule:  schedule,
		publisher: publisher,
		now:       time.Now,
	}
}

// Run processes profiles and their posts one at a time in sheet order. A
// failure is recorded against its post or profile and the sweep moves on;
// only failing to list profiles aborts the run.
func (b *BatchCronRunner) Run(ctx context.Context) (*models.SweepReport, error) {
	ctx, span := otel.Tracer("sheetflow/sweep").Start(ctx, "sweep.run")
	defer span.End()

	profiles, err := b.profiles.List(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("sweep.profiles", len(profiles)))

	report := &models.SweepReport{Results: make([]models.ProfileResult, 0, len(profiles))}
	for i := range profiles {
		result := b.runProfile(ctx, &profiles[i])
		telemetry.SweepRuns.WithLabelValues(string(result.Status)).Inc()
		report.Results = append(report.Results, result)
	}
	return report, nil
}

func (b *BatchCronRunner) runProfile(ctx context.Context, profile *models.Profile) models.ProfileResult {
	result := models.ProfileResult{Profile: profile.Name}

	if !profile.HasCredentials() {
		result.Status = models.ProfileSkipped
		result.Message = "Missing credentials"
		return result
	}

	due, err := b.schedule.FetchDue(ctx, profile, b.now())
	if err != nil {
		result.Status = models.ProfileError
		result.Message = err.Error()
		return result
	}
	if len(due) == 0 {
		result.Status = models.ProfileSuccess
		result.Message = "No due posts"
		return result
	}

	result.Status = models.ProfileCompleted
	result.Results = make([]models.PostResult, 0, len(due))
	for i := range due {
		result.Results = append(result.Results, b.runPost(ctx, profile, &due[i]))
	}
	return result
}

func (b *BatchCronRunner) runPost(ctx context.Context, profile *models.Profile, post *models.ScheduledPost) models.PostResult {
	res := models.PostResult{RowIndex: post.RowIndex, PostID: post.ID}

	publishedID, err := b.publisher.PublishOne(ctx, profile, post, nil)
	var syncErr *service.SyncError
	switch {
	case err == nil:
		res.Status = models.PostRunSuccess
		res.PublishedID = publishedID
	case errors.As(err, &syncErr):
		res.Status = models.PostRunSyncError
		res.PublishedID = syncErr.PublishedID
		res.Message = err.Error()
	default:
		res.Status = models.PostRunError
		res.Message = err.Error()
	}
	return res
}
