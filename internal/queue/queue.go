package queue

import (
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/maheshrc27/sheetflow/internal/telemetry"
)

// EnqueuePublishNow queues a manual publish. Tasks are never retried: a
// retry after a timeout could post the same content twice.
func EnqueuePublishNow(asynqClient *asynq.Client, payload PublishNowPayload) (string, error) {
	taskPayload, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(TaskTypePublishNow, taskPayload, asynq.MaxRetry(0))

	info, err := asynqClient.Enqueue(task)
	if err != nil {
		return "", err
	}
	telemetry.QueuedPublishes.Inc()

	slog.Info("publish task queued", "task", info.ID, "profile", payload.ProfileID, "post", payload.PostID)
	return info.ID, nil
}
