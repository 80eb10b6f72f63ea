package queue

import (
	"context"

	"github.com/maheshrc27/sheetflow/internal/transfer"
)

// Publisher is the part of the polling scheduler the worker needs.
type Publisher interface {
	PublishNow(ctx context.Context, profileID, postID string) (string, error)
}

type Queue struct {
	publisher Publisher
}

func NewQueue(publisher Publisher) *Queue {
	return &Queue{publisher: publisher}
}

const TaskTypePublishNow = "schedule:publish_now"

type PublishNowPayload = transfer.PublishNowPayload
