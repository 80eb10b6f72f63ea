package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

func (j *Queue) HandlePublishNowTask(ctx context.Context, task *asynq.Task) error {
	var payload PublishNowPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %v: %w", err, asynq.SkipRetry)
	}

	publishedID, err := j.publisher.PublishNow(ctx, payload.ProfileID, payload.PostID)
	if err != nil {
		slog.Info("publish now failed", "post", payload.PostID, "error", err)
		return fmt.Errorf("publish %s: %v: %w", payload.PostID, err, asynq.SkipRetry)
	}

	slog.Info("publish now succeeded", "post", payload.PostID, "published_id", publishedID)
	return nil
}
