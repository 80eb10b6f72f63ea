package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
)

type stubPublisher struct {
	profileID, postID string
	err               error
}

func (s *stubPublisher) PublishNow(ctx context.Context, profileID, postID string) (string, error) {
	s.profileID, s.postID = profileID, postID
	return "ig_1", s.err
}

func TestHandlePublishNowTask(t *testing.T) {
	stub := &stubPublisher{}
	q := NewQueue(stub)

	payload, _ := json.Marshal(PublishNowPayload{ProfileID: "a", PostID: "post_1"})
	if err := q.HandlePublishNowTask(context.Background(), asynq.NewTask(TaskTypePublishNow, payload)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if stub.profileID != "a" || stub.postID != "post_1" {
		t.Fatalf("unexpected call %+v", stub)
	}

	stub.err = errors.New("boom")
	err := q.HandlePublishNowTask(context.Background(), asynq.NewTask(TaskTypePublishNow, payload))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}

	err = q.HandlePublishNowTask(context.Background(), asynq.NewTask(TaskTypePublishNow, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry for bad payload, got %v", err)
	}
}
