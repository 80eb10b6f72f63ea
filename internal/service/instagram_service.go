package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	config "github.com/maheshrc27/sheetflow/configs"
	"github.com/maheshrc27/sheetflow/internal/models"
	"github.com/maheshrc27/sheetflow/internal/transfer"
)

// PublishState is a step of the container publish protocol.
type PublishState string

const (
	StateUploadingItems     PublishState = "UPLOADING_ITEMS"
	StateAwaitingItemReady  PublishState = "AWAITING_ITEM_READY"
	StateAssemblingCarousel PublishState = "ASSEMBLING_CAROUSEL"
	StateAwaitingFinalReady PublishState = "AWAITING_FINAL_READY"
	StatePublishing         PublishState = "PUBLISHING"
	StateDone               PublishState = "DONE"
	StateFailed             PublishState = "FAILED"
)

type PublishPhase string

const (
	PhaseUploadingItems   PublishPhase = "uploading items"
	PhaseWaitingForItems  PublishPhase = "waiting for items to process"
	PhaseCreatingCarousel PublishPhase = "creating carousel container"
	PhaseFinalizing       PublishPhase = "finalizing post"
	PhasePublishing       PublishPhase = "publishing to feed"
)

var statePhases = map[PublishState]PublishPhase{
	StateUploadingItems:     PhaseUploadingItems,
	StateAwaitingItemReady:  PhaseWaitingForItems,
	StateAssemblingCarousel: PhaseCreatingCarousel,
	StateAwaitingFinalReady: PhaseFinalizing,
	StatePublishing:         PhasePublishing,
}

// PublishEvent is sent on every state transition, never per poll tick. The
// last event of a run is always DONE or FAILED.
type PublishEvent struct {
	State PublishState
	Phase PublishPhase
	At    time.Time
}

type PublishRequest struct {
	AccountID   string
	AccessToken string
	Caption     string
	MediaItems  []models.MediaItem

	// Events is optional. Sends never block, so a slow reader misses events
	// instead of stalling the publish.
	Events chan<- PublishEvent
}

type InstagramService interface {
	Publish(ctx context.Context, req *PublishRequest) (string, error)
	LookupBusinessAccount(ctx context.Context, accessToken string) (string, error)
}

type instagramService struct {
	client       *http.Client
	baseURL      string
	formatHost   string
	pollInterval time.Duration
	pollAttempts int
}

func NewInstagramService(cfg config.Config, client *http.Client) InstagramService {
	if client == nil {
		client = &http.Client{Timeout: cfg.Instagram.RequestTimeout}
	}
	attempts := cfg.Instagram.PollAttempts
	if attempts <= 0 {
		attempts = 20
	}
	return &instagramService{
		client:       client,
		baseURL:      strings.TrimSuffix(cfg.Instagram.GraphBaseURL, "/"),
		formatHost:   cfg.Instagram.FormatHost,
		pollInterval: cfg.Instagram.PollInterval,
		pollAttempts: attempts,
	}
}

// Publish drives one post through the container protocol and returns the
// published media id. Any failure aborts the whole post; nothing is retried
// here.
func (s *instagramService) Publish(ctx context.Context, req *PublishRequest) (string, error) {
	if err := validatePublishRequest(req); err != nil {
		return "", err
	}

	run := &publishRun{s: s, req: req}
	id, err := run.execute(ctx)
	if err != nil {
		run.transition(StateFailed)
		slog.Info("instagram publish failed", "account", req.AccountID, "stage", Stage(err), "error", err)
		return "", err
	}
	run.transition(StateDone)
	return id, nil
}

func validatePublishRequest(req *PublishRequest) error {
	if req == nil {
		return fmt.Errorf("%w: request is nil", ErrInvalidInput)
	}
	if req.AccountID == "" || req.AccessToken == "" {
		return fmt.Errorf("%w: missing account id or access token", ErrInvalidInput)
	}
	if len(req.MediaItems) == 0 {
		return fmt.Errorf("%w: no media items provided", ErrInvalidInput)
	}
	if len(req.MediaItems) > models.MaxMediaItems {
		return fmt.Errorf("%w: carousels support a maximum of %d items, got %d", ErrInvalidInput, models.MaxMediaItems, len(req.MediaItems))
	}
	for i, item := range req.MediaItems {
		if strings.TrimSpace(item.URL) == "" {
			return fmt.Errorf("%w: media item %d has no url", ErrInvalidInput, i+1)
		}
	}
	return nil
}

type publishRun struct {
	s   *instagramService
	req *PublishRequest
}

// transition reports a state change. DONE and FAILED carry no phase.
func (r *publishRun) transition(to PublishState) {
	if r.req.Events == nil {
		return
	}
	select {
	case r.req.Events <- PublishEvent{State: to, Phase: statePhases[to], At: time.Now()}:
	default:
	}
}

func (r *publishRun) execute(ctx context.Context) (string, error) {
	var finalID, finalStage string

	r.transition(StateUploadingItems)
	if len(r.req.MediaItems) > 1 {
		childIDs := make([]string, 0, len(r.req.MediaItems))
		stages := make([]string, 0, len(r.req.MediaItems))
		for i, item := range r.req.MediaItems {
			stage := fmt.Sprintf("Upload Media %d", i+1)
			payload := r.s.mediaPayload(item)
			payload["is_carousel_item"] = true

			id, err := r.s.createContainer(ctx, r.req, payload, stage)
			if err != nil {
				return "", err
			}
			childIDs = append(childIDs, id)
			stages = append(stages, stage)
		}

		r.transition(StateAwaitingItemReady)
		for i, id := range childIDs {
			if err := r.s.waitForContainer(ctx, r.req.AccessToken, id, stages[i]); err != nil {
				return "", err
			}
		}

		r.transition(StateAssemblingCarousel)
		finalStage = "Create Carousel Container"
		id, err := r.s.createContainer(ctx, r.req, map[string]interface{}{
			"media_type": "CAROUSEL",
			"caption":    r.req.Caption,
			"children":   strings.Join(childIDs, ","),
		}, finalStage)
		if err != nil {
			return "", err
		}
		finalID = id
	} else {
		finalStage = "Upload Single Media"
		payload := r.s.mediaPayload(r.req.MediaItems[0])
		payload["caption"] = r.req.Caption

		id, err := r.s.createContainer(ctx, r.req, payload, finalStage)
		if err != nil {
			return "", err
		}
		finalID = id
	}

	r.transition(StateAwaitingFinalReady)
	if err := r.s.waitForContainer(ctx, r.req.AccessToken, finalID, finalStage); err != nil {
		return "", err
	}

	r.transition(StatePublishing)
	var published transfer.GraphIDResponse
	err := r.s.post(ctx, fmt.Sprintf("%s/%s/media_publish", r.s.baseURL, url.PathEscape(r.req.AccountID)), map[string]interface{}{
		"creation_id":  finalID,
		"access_token": r.req.AccessToken,
	}, "Publish Container", &published)
	if err != nil {
		return "", err
	}
	if published.ID == "" {
		return "", &ProtocolError{Stage: "Publish Container", Message: "no media id returned"}
	}
	return published.ID, nil
}

func (s *instagramService) mediaPayload(item models.MediaItem) map[string]interface{} {
	if item.Kind == models.MediaVideo {
		return map[string]interface{}{
			"media_type": "VIDEO",
			"video_url":  item.URL,
		}
	}
	return map[string]interface{}{
		"image_url": s.withFormatParam(item.URL),
	}
}

// withFormatParam forces JPEG delivery for images served from the
// configured transforming CDN, since the Graph API rejects WebP and AVIF.
func (s *instagramService) withFormatParam(raw string) string {
	if s.formatHost == "" || !strings.Contains(raw, s.formatHost) {
		return raw
	}
	if strings.Contains(raw, "?") {
		return raw + "&tr=f-jpg"
	}
	return raw + "?tr=f-jpg"
}

func (s *instagramService) createContainer(ctx context.Context, req *PublishRequest, payload map[string]interface{}, stage string) (string, error) {
	payload["access_token"] = req.AccessToken

	var result transfer.GraphIDResponse
	if err := s.post(ctx, fmt.Sprintf("%s/%s/media", s.baseURL, url.PathEscape(req.AccountID)), payload, stage, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", &ProtocolError{Stage: stage, Message: "no container id returned"}
	}
	return result.ID, nil
}

func (s *instagramService) waitForContainer(ctx context.Context, accessToken, containerID, stage string) error {
	q := url.Values{}
	q.Set("fields", "status_code")
	q.Set("access_token", accessToken)
	statusURL := fmt.Sprintf("%s/%s?%s", s.baseURL, url.PathEscape(containerID), q.Encode())

	for attempt := 1; attempt <= s.pollAttempts; attempt++ {
		var status transfer.ContainerStatus
		if err := s.get(ctx, statusURL, "Status Check", &status); err != nil {
			return err
		}
		slog.Debug("container status", "container", containerID, "status", status.StatusCode, "attempt", attempt)

		switch status.StatusCode {
		case transfer.ContainerFinished:
			return nil
		case transfer.ContainerError:
			return &ContainerError{Stage: stage, ContainerID: containerID, Attempts: attempt, Err: ErrProcessing}
		case transfer.ContainerExpired:
			return &ContainerError{Stage: stage, ContainerID: containerID, Attempts: attempt, Err: ErrContainerExpired}
		}

		if attempt == s.pollAttempts {
			break
		}
		timer := time.NewTimer(s.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return &ContainerError{Stage: stage, ContainerID: containerID, Attempts: s.pollAttempts, Err: ErrPollTimeout}
}

// LookupBusinessAccount returns the first Instagram business account linked
// to a Facebook page the token can see.
func (s *instagramService) LookupBusinessAccount(ctx context.Context, accessToken string) (string, error) {
	if accessToken == "" {
		return "", fmt.Errorf("%w: access token is required", ErrInvalidInput)
	}

	q := url.Values{}
	q.Set("fields", "instagram_business_account,name")
	q.Set("access_token", accessToken)

	var pages struct {
		Data []struct {
			Name                     string `json:"name"`
			InstagramBusinessAccount *struct {
				ID string `json:"id"`
			} `json:"instagram_business_account"`
		} `json:"data"`
	}
	if err := s.get(ctx, fmt.Sprintf("%s/me/accounts?%s", s.baseURL, q.Encode()), "Fetch Pages", &pages); err != nil {
		return "", err
	}
	for _, page := range pages.Data {
		if page.InstagramBusinessAccount != nil && page.InstagramBusinessAccount.ID != "" {
			return page.InstagramBusinessAccount.ID, nil
		}
	}
	return "", errors.New("no instagram business account found linked to your facebook pages")
}

func (s *instagramService) post(ctx context.Context, endpoint string, payload map[string]interface{}, stage string, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error marshalling payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, stage, out)
}

func (s *instagramService) get(ctx context.Context, endpoint, stage string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	return s.do(req, stage, out)
}

func (s *instagramService) do(req *http.Request, stage string, out interface{}) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return &ProtocolError{Stage: stage, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ProtocolError{Stage: stage, StatusCode: resp.StatusCode, Err: fmt.Errorf("error reading response body: %w", err)}
	}

	var graphErr transfer.GraphErrorResponse
	if json.Unmarshal(respBody, &graphErr) == nil && graphErr.Error.Message != "" {
		return &ProtocolError{
			Stage:       stage,
			StatusCode:  resp.StatusCode,
			Code:        graphErr.Error.Code,
			Message:     graphErr.Error.Message,
			UserMessage: graphErr.Error.ErrorUserMsg,
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &ProtocolError{Stage: stage, StatusCode: resp.StatusCode, Message: fmt.Sprintf("unexpected status code %d", resp.StatusCode)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return &ProtocolError{Stage: stage, StatusCode: resp.StatusCode, Err: fmt.Errorf("error parsing response: %w", err)}
	}
	return nil
}
