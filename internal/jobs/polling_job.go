package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/maheshrc27/sheetflow/internal/models"
	"github.com/maheshrc27/sheetflow/internal/repository"
	"github.com/maheshrc27/sheetflow/internal/service"
	"github.com/maheshrc27/sheetflow/internal/telemetry"
)

var (
	ErrPublishInFlight  = errors.New("another post is being published")
	ErrPostNotFound     = errors.New("post not found")
	ErrAlreadyPublished = errors.New("post is already published")
)

// Snapshot is the read-only view served to the operator.
type Snapshot struct {
	Running      bool                   `json:"running"`
	ProcessingID string                 `json:"processing_id,omitempty"`
	Phase        service.PublishPhase   `json:"phase,omitempty"`
	ProfileID    string                 `json:"profile_id,omitempty"`
	LastCheck    *time.Time             `json:"last_check,omitempty"`
	Posts        []models.ScheduledPost `json:"posts"`
	RowErrors    []models.RowError      `json:"row_errors"`
}

// PollingScheduler is the interactive automation loop. While running it
// fetches the active profile's schedule every interval and publishes at most
// one due post per cycle.
type PollingScheduler struct {
	profiles  repository.ProfileRepository
	schedule  repository.ScheduleRepository
	publisher service.PublishService
	cache     repository.PublishedCache
	state     *service.AppState
	interval  time.Duration
	now       func() time.Time

	mu         sync.Mutex
	cron       *gocron.Scheduler
	processing string
	phase      service.PublishPhase
	profileID  string
	view       *repository.FetchResult
	unsynced   map[string]bool
	warned     map[string]bool
}

func NewPollingScheduler(
	profiles repository.ProfileRepository,
	schedule repository.ScheduleRepository,
	publisher service.PublishService,
	cache repository.PublishedCache,
	state *service.AppState,
	interval time.Duration) *PollingScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PollingScheduler{
		profiles:  profiles,
		schedule:  schedule,
		publisher: publisher,
		cache:     cache,
		state:     state,
		interval:  interval,
		now:       time.Now,
		unsynced:  make(map[string]bool),
		warned:    make(map[string]bool),
	}
}

// Start runs one cycle right away and then one per interval. It is a no-op
// when already running.
func (p *PollingScheduler) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.cron != nil {
		p.mu.Unlock()
		return nil
	}
	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()
	if _, err := s.Every(p.interval).StartImmediately().Do(p.tick); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("failed to schedule polling cycle: %w", err)
	}
	s.StartAsync()
	p.cron = s
	p.mu.Unlock()

	p.state.Log(ctx, nil, models.LogLevelInfo, "Automation started", fmt.Sprintf("Checking every %s", p.interval))
	return p.state.UpdateSettings(ctx, func(s *models.AppSettings) { s.AutomationEnabled = true })
}

// Stop cancels future cycles. A publish already in flight runs to
// completion in the background.
func (p *PollingScheduler) Stop(ctx context.Context) error {
	s := p.detach()
	if s != nil {
		go s.Stop()
		p.state.Log(ctx, nil, models.LogLevelInfo, "Automation stopped", "")
	}
	return p.state.UpdateSettings(ctx, func(s *models.AppSettings) { s.AutomationEnabled = false })
}

// Shutdown stops the loop for process exit, waiting for an in-flight cycle.
// The persisted automation flag is left alone so a restart resumes.
func (p *PollingScheduler) Shutdown() {
	if s := p.detach(); s != nil {
		s.Stop()
	}
}

// RestoreFromSettings resumes the loop if it was running before a restart.
func (p *PollingScheduler) RestoreFromSettings(ctx context.Context) error {
	if !p.state.Settings().AutomationEnabled {
		return nil
	}
	slog.Info("restoring automation from saved settings")
	return p.Start(ctx)
}

func (p *PollingScheduler) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cron != nil
}

func (p *PollingScheduler) detach() *gocron.Scheduler {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.cron
	p.cron = nil
	return s
}

func (p *PollingScheduler) tick() {
	if err := p.RunCycle(context.Background()); err != nil {
		slog.Info(err.Error())
	}
}

// RunCycle is one iteration of the loop: refresh the view, then publish the
// first due post unless a publish is already in flight.
func (p *PollingScheduler) RunCycle(ctx context.Context) error {
	profile, err := p.resolveProfile(ctx, "")
	if err != nil {
		telemetry.SchedulerCycles.WithLabelValues("error").Inc()
		return err
	}

	result, err := p.fetch(ctx, profile)
	if err != nil {
		telemetry.SchedulerCycles.WithLabelValues("error").Inc()
		p.state.Log(ctx, profile, models.LogLevelError, "Failed to fetch schedule", err.Error())
		return err
	}

	due := p.pendingDue(ctx, profile, result.Due())
	telemetry.DuePosts.Set(float64(len(due)))
	if len(due) == 0 {
		telemetry.SchedulerCycles.WithLabelValues("idle").Inc()
		return nil
	}
	if !profile.HasCredentials() {
		telemetry.SchedulerCycles.WithLabelValues("no_credentials").Inc()
		if p.warnOnce(profile.ID) {
			p.state.Log(ctx, profile, models.LogLevelError, "Missing credentials",
				fmt.Sprintf("%d due posts waiting, set the account id and access token for %s", len(due), profile.Name))
		}
		return nil
	}
	p.clearWarning(profile.ID)

	post := due[0]
	if !p.acquire(post.ID) {
		telemetry.SchedulerCycles.WithLabelValues("busy").Inc()
		return nil
	}
	defer p.release()

	p.state.Log(ctx, profile, models.LogLevelInfo, fmt.Sprintf("Publishing row %d", post.RowIndex), post.Title)
	if _, err := p.publish(ctx, profile, &post); err != nil {
		telemetry.SchedulerCycles.WithLabelValues("failed").Inc()
		return nil
	}
	telemetry.SchedulerCycles.WithLabelValues("published").Inc()
	return nil
}

// Refresh refetches the active profile's schedule into the view.
func (p *PollingScheduler) Refresh(ctx context.Context) (*repository.FetchResult, error) {
	profile, err := p.resolveProfile(ctx, "")
	if err != nil {
		return nil, err
	}
	result, err := p.fetch(ctx, profile)
	if err != nil {
		p.state.Log(ctx, profile, models.LogLevelError, "Failed to fetch schedule", err.Error())
		return nil, err
	}
	p.state.Log(ctx, profile, models.LogLevelInfo, fmt.Sprintf("Fetched %d rows", len(result.Posts)), "")
	return result, nil
}

// PublishNow publishes one post immediately, honouring the in-flight guard.
// An empty profileID means the active profile.
func (p *PollingScheduler) PublishNow(ctx context.Context, profileID, postID string) (string, error) {
	profile, err := p.resolveProfile(ctx, profileID)
	if err != nil {
		return "", err
	}
	post, err := p.findPost(ctx, profile, postID)
	if err != nil {
		return "", err
	}
	if post.StoredStatus == models.PostStatusPublished {
		return "", ErrAlreadyPublished
	}

	if !p.acquire(post.ID) {
		return "", ErrPublishInFlight
	}
	defer p.release()

	p.state.Log(ctx, profile, models.LogLevelInfo, fmt.Sprintf("Publishing row %d now", post.RowIndex), post.Title)
	return p.publish(ctx, profile, post)
}

// DeletePost removes a post's row and refetches, since every row below it
// moves up by one.
func (p *PollingScheduler) DeletePost(ctx context.Context, postID string) error {
	profile, err := p.resolveProfile(ctx, "")
	if err != nil {
		return err
	}
	post, err := p.findPost(ctx, profile, postID)
	if err != nil {
		return err
	}

	if !p.acquire(post.ID) {
		return ErrPublishInFlight
	}
	defer p.release()

	if err := p.schedule.Delete(ctx, profile, post.RowIndex); err != nil {
		p.state.Log(ctx, profile, models.LogLevelError, fmt.Sprintf("Failed to delete row %d", post.RowIndex), err.Error())
		return err
	}
	p.state.Log(ctx, profile, models.LogLevelInfo, fmt.Sprintf("Deleted row %d", post.RowIndex), post.Title)

	p.invalidate()
	if _, err := p.fetch(ctx, profile); err != nil {
		slog.Info(err.Error())
	}
	return nil
}

// SelectProfile makes id the active profile and drops the current view.
func (p *PollingScheduler) SelectProfile(ctx context.Context, id string) (*models.Profile, error) {
	profile, err := p.profiles.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.state.UpdateSettings(ctx, func(s *models.AppSettings) { s.ActiveProfileID = profile.ID }); err != nil {
		return nil, err
	}
	p.invalidate()
	p.state.Log(ctx, profile, models.LogLevelInfo, "Switched to profile "+profile.Name, "")
	return profile, nil
}

// ActiveProfile returns the profile the loop works on.
func (p *PollingScheduler) ActiveProfile(ctx context.Context) (*models.Profile, error) {
	return p.resolveProfile(ctx, "")
}

func (p *PollingScheduler) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := Snapshot{
		Running:      p.cron != nil,
		ProcessingID: p.processing,
		Phase:        p.phase,
		ProfileID:    p.profileID,
		Posts:        []models.ScheduledPost{},
		RowErrors:    []models.RowError{},
	}
	if p.view != nil {
		at := p.view.FetchedAt
		snap.LastCheck = &at
		snap.Posts = append(snap.Posts, p.view.Posts...)
		snap.RowErrors = append(snap.RowErrors, p.view.RowErrors...)
	}
	return snap
}

func (p *PollingScheduler) publish(ctx context.Context, profile *models.Profile, post *models.ScheduledPost) (string, error) {
	events := make(chan service.PublishEvent, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			p.setPhase(ev.Phase)
		}
	}()

	id, err := p.publisher.PublishOne(ctx, profile, post, events)
	close(events)
	<-done
	p.setPhase("")

	var syncErr *service.SyncError
	switch {
	case err == nil:
		p.markView(post.ID, models.PostStatusPublished)
	case errors.As(err, &syncErr):
		p.mu.Lock()
		p.unsynced[post.ID] = true
		p.mu.Unlock()
		p.markView(post.ID, models.PostStatusPublished)
	default:
		p.markView(post.ID, models.PostStatusFailed)
	}
	return id, err
}

// pendingDue drops posts that went live but whose status write failed,
// retrying the write instead of publishing them again.
func (p *PollingScheduler) pendingDue(ctx context.Context, profile *models.Profile, due []models.ScheduledPost) []models.ScheduledPost {
	out := due[:0]
	for _, post := range due {
		p.mu.Lock()
		unsynced := p.unsynced[post.ID]
		p.mu.Unlock()
		if !unsynced {
			out = append(out, post)
			continue
		}
		if err := p.schedule.UpdateStatus(ctx, profile, post.RowIndex, models.PostStatusPublished); err != nil {
			slog.Info("status sync still failing", "row", post.RowIndex, "error", err)
			continue
		}
		p.mu.Lock()
		delete(p.unsynced, post.ID)
		p.mu.Unlock()
		p.markView(post.ID, models.PostStatusPublished)
	}
	return out
}

func (p *PollingScheduler) resolveProfile(ctx context.Context, id string) (*models.Profile, error) {
	if id != "" {
		return p.profiles.Get(ctx, id)
	}

	profiles, err := p.profiles.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, service.ErrNoActiveProfile
	}
	active := p.state.Settings().ActiveProfileID
	for i := range profiles {
		if profiles[i].ID == active {
			return &profiles[i], nil
		}
	}
	return &profiles[0], nil
}

func (p *PollingScheduler) fetch(ctx context.Context, profile *models.Profile) (*repository.FetchResult, error) {
	result, err := p.schedule.Fetch(ctx, profile, p.now())
	if err != nil {
		return nil, err
	}
	telemetry.RowErrors.Set(float64(len(result.RowErrors)))

	view := p.overlayPublished(ctx, profile, result)

	p.mu.Lock()
	p.view = view
	p.profileID = profile.ID
	p.mu.Unlock()
	return result, nil
}

// overlayPublished returns a copy of result for the view in which due posts
// this process already published show as published. The copy is display
// only; due selection always works on the sheet's own statuses.
func (p *PollingScheduler) overlayPublished(ctx context.Context, profile *models.Profile, result *repository.FetchResult) *repository.FetchResult {
	view := *result
	view.Posts = append([]models.ScheduledPost(nil), result.Posts...)
	if p.cache == nil {
		return &view
	}

	ids, err := p.cache.Members(ctx, profile.ID)
	if err != nil {
		slog.Info("unable to read published ids", "profile", profile.ID, "error", err)
		return &view
	}
	published := make(map[string]bool, len(ids))
	for _, id := range ids {
		published[id] = true
	}
	for i := range view.Posts {
		if view.Posts[i].Status == models.PostStatusDue && published[view.Posts[i].ID] {
			view.Posts[i].Status = models.PostStatusPublished
		}
	}
	return &view
}

func (p *PollingScheduler) findPost(ctx context.Context, profile *models.Profile, postID string) (*models.ScheduledPost, error) {
	result, err := p.fetch(ctx, profile)
	if err != nil {
		return nil, err
	}
	for i := range result.Posts {
		if result.Posts[i].ID == postID {
			return &result.Posts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPostNotFound, postID)
}

func (p *PollingScheduler) acquire(postID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.processing != "" {
		return false
	}
	p.processing = postID
	return true
}

// warnOnce reports whether the missing-credentials warning for a profile
// has not been logged yet, and marks it logged.
func (p *PollingScheduler) warnOnce(profileID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.warned[profileID] {
		return false
	}
	p.warned[profileID] = true
	return true
}

func (p *PollingScheduler) clearWarning(profileID string) {
	p.mu.Lock()
	delete(p.warned, profileID)
	p.mu.Unlock()
}

func (p *PollingScheduler) release() {
	p.mu.Lock()
	p.processing = ""
	p.phase = ""
	p.mu.Unlock()
}

func (p *PollingScheduler) setPhase(phase service.PublishPhase) {
	p.mu.Lock()
	p.phase = phase
	p.mu.Unlock()
}

// markView changes a post's status in the view only.
func (p *PollingScheduler) markView(postID string, status models.PostStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.view == nil {
		return
	}
	for i := range p.view.Posts {
		if p.view.Posts[i].ID == postID {
			p.view.Posts[i].Status = status
			return
		}
	}
}

func (p *PollingScheduler) invalidate() {
	p.mu.Lock()
	p.view = nil
	p.mu.Unlock()
}
