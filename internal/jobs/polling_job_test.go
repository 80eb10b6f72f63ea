package job

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/maheshrc27/sheetflow/internal/models"
	"github.com/maheshrc27/sheetflow/internal/repository"
	"github.com/maheshrc27/sheetflow/internal/service"
	"github.com/redis/go-redis/v9"
)

func seedSingleProfile(f *fixture) {
	f.store.Seed(repository.ProfilesTab, repository.ProfilesHeader, profileRow("a", "Alpha", "acc_a", "tok_a"))
	f.store.Seed("Alpha Posts", repository.ScheduleHeader,
		scheduleRow("2024-01-01", "09:00", "published"),
		scheduleRow("2024-01-01", "10:00", "pending"),
		scheduleRow("2024-01-01", "11:00", "pending"),
		scheduleRow("2030-01-01", "10:00", "pending"),
	)
}

func TestRunCyclePublishesOnlyFirstDuePost(t *testing.T) {
	f := newFixture()
	seedSingleProfile(f)
	p := f.scheduler()

	if err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	calls := f.publisher.Calls()
	if len(calls) != 1 || calls[0] != "a#3" {
		t.Fatalf("expected only row 3 to be published, got %v", calls)
	}

	snap := p.Snapshot()
	if snap.ProcessingID != "" || snap.LastCheck == nil || len(snap.Posts) != 4 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Posts[1].Status != models.PostStatusPublished || snap.Posts[2].Status != models.PostStatusDue {
		t.Fatalf("unexpected view statuses %q %q", snap.Posts[1].Status, snap.Posts[2].Status)
	}
}

func TestGuardBlocksConcurrentPublish(t *testing.T) {
	f := newFixture()
	seedSingleProfile(f)
	f.publisher.started = make(chan string, 1)
	f.publisher.block = make(chan struct{})
	p := f.scheduler()
	ctx := context.Background()

	cycleDone := make(chan error, 1)
	go func() { cycleDone <- p.RunCycle(ctx) }()

	inFlight := <-f.publisher.started
	if got := p.Snapshot().ProcessingID; got != inFlight {
		t.Fatalf("expected processing id %s, got %s", inFlight, got)
	}

	other := p.Snapshot().Posts[2].ID
	if _, err := p.PublishNow(ctx, "", other); !errors.Is(err, ErrPublishInFlight) {
		t.Fatalf("expected ErrPublishInFlight, got %v", err)
	}
	if err := p.RunCycle(ctx); err != nil {
		t.Fatalf("overlapping cycle: %v", err)
	}
	if err := p.DeletePost(ctx, other); !errors.Is(err, ErrPublishInFlight) {
		t.Fatalf("expected delete to be refused, got %v", err)
	}
	if calls := f.publisher.Calls(); len(calls) != 1 {
		t.Fatalf("expected a single publish while guarded, got %v", calls)
	}

	close(f.publisher.block)
	select {
	case err := <-cycleDone:
		if err != nil {
			t.Fatalf("cycle: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cycle did not finish")
	}
	if got := p.Snapshot().ProcessingID; got != "" {
		t.Fatalf("guard not released, processing %s", got)
	}
}

func TestGuardReleasedAfterFailure(t *testing.T) {
	f := newFixture()
	seedSingleProfile(f)
	f.publisher.fail[publishKey("a", 3)] = errBoom
	p := f.scheduler()
	ctx := context.Background()

	if err := p.RunCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	snap := p.Snapshot()
	if snap.ProcessingID != "" {
		t.Fatalf("guard not released after failure")
	}
	if snap.Posts[1].Status != models.PostStatusFailed {
		t.Fatalf("expected failed view status, got %q", snap.Posts[1].Status)
	}
	if row := f.store.Row("Alpha Posts", 3); row[repository.ColStatus] != "pending" {
		t.Fatalf("failure must not touch the sheet, got %q", row[repository.ColStatus])
	}

	if _, err := p.PublishNow(ctx, "", snap.Posts[2].ID); err != nil {
		t.Fatalf("publish now after failure: %v", err)
	}
	if calls := f.publisher.Calls(); len(calls) != 2 || calls[1] != "a#4" {
		t.Fatalf("unexpected calls %v", calls)
	}
}

func TestPublishNowRejectsPublishedAndUnknownPosts(t *testing.T) {
	f := newFixture()
	seedSingleProfile(f)
	p := f.scheduler()
	ctx := context.Background()

	if _, err := p.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	published := p.Snapshot().Posts[0].ID
	if _, err := p.PublishNow(ctx, "", published); !errors.Is(err, ErrAlreadyPublished) {
		t.Fatalf("expected ErrAlreadyPublished, got %v", err)
	}
	if _, err := p.PublishNow(ctx, "", "post_missing"); !errors.Is(err, ErrPostNotFound) {
		t.Fatalf("expected ErrPostNotFound, got %v", err)
	}
	if len(f.publisher.Calls()) != 0 {
		t.Fatalf("nothing should have been published")
	}
}

func TestDeletePostRefetchesView(t *testing.T) {
	f := newFixture()
	seedSingleProfile(f)
	p := f.scheduler()
	ctx := context.Background()

	result, err := p.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := p.DeletePost(ctx, result.Posts[1].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	snap := p.Snapshot()
	if len(snap.Posts) != 3 || snap.Posts[1].Caption != "caption 11:00" || snap.Posts[1].RowIndex != 3 {
		t.Fatalf("expected view to be refetched after delete, got %+v", snap.Posts)
	}
}

func TestStartStopPersistsAutomationFlag(t *testing.T) {
	f := newFixture()
	seedSingleProfile(f)
	p := f.scheduler()
	ctx := context.Background()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !p.IsRunning() || !f.state.Settings().AutomationEnabled {
		t.Fatalf("expected running with automation enabled")
	}
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if p.IsRunning() || f.state.Settings().AutomationEnabled {
		t.Fatalf("expected stopped with automation disabled")
	}
}

func TestSelectProfileSwitchesActiveProfile(t *testing.T) {
	f := newFixture()
	f.store.Seed(repository.ProfilesTab, repository.ProfilesHeader,
		profileRow("a", "Alpha", "acc_a", "tok_a"),
		profileRow("b", "Beta", "acc_b", "tok_b"),
	)
	f.store.Seed("Beta Posts", repository.ScheduleHeader, scheduleRow("2024-01-01", "10:00", "pending"))
	p := f.scheduler()
	ctx := context.Background()

	if _, err := p.SelectProfile(ctx, "b"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := p.RunCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if calls := f.publisher.Calls(); len(calls) != 1 || calls[0] != "b#2" {
		t.Fatalf("expected profile b to be used, got %v", calls)
	}
	if _, err := p.SelectProfile(ctx, "missing"); !errors.Is(err, repository.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}
}

func TestSyncErrorRetriesStatusWriteInsteadOfRepublishing(t *testing.T) {
	f := newFixture()
	seedSingleProfile(f)
	f.publisher.fail[publishKey("a", 3)] = &service.SyncError{PublishedID: "ig_3", RowIndex: 3, Err: errBoom}
	p := f.scheduler()
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := p.RunCycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	calls := f.publisher.Calls()
	if len(calls) != 2 || calls[0] != "a#3" || calls[1] != "a#4" {
		t.Fatalf("expected row 3 once then row 4, got %v", calls)
	}
	if row := f.store.Row("Alpha Posts", 3); row[repository.ColStatus] != "published" {
		t.Fatalf("expected status write to be retried, got %q", row[repository.ColStatus])
	}
	if snap := p.Snapshot(); snap.Posts[1].Status != models.PostStatusPublished {
		t.Fatalf("expected row 3 to show as published, got %q", snap.Posts[1].Status)
	}
}

func TestSyncErrorWithFailingStatusWriteDoesNotBlockQueue(t *testing.T) {
	f := newFixture()
	seedSingleProfile(f)
	f.publisher.fail[publishKey("a", 3)] = &service.SyncError{PublishedID: "ig_3", RowIndex: 3, Err: errBoom}
	p := f.scheduler()
	ctx := context.Background()

	if err := p.RunCycle(ctx); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	f.store.FailOn("update", errBoom)
	if err := p.RunCycle(ctx); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	calls := f.publisher.Calls()
	if len(calls) != 2 || calls[0] != "a#3" || calls[1] != "a#4" {
		t.Fatalf("expected row 3 once then row 4, got %v", calls)
	}
	if f.store.Calls("update") != 1 {
		t.Fatalf("expected one status write attempt, got %d", f.store.Calls("update"))
	}
	if row := f.store.Row("Alpha Posts", 3); row[repository.ColStatus] != "pending" {
		t.Fatalf("status cell should be unchanged, got %q", row[repository.ColStatus])
	}
	if got := p.Snapshot().ProcessingID; got != "" {
		t.Fatalf("guard not released, processing %s", got)
	}
}

func TestViewShowsCachedPostsAsPublished(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()

	f := newFixture()
	seedSingleProfile(f)
	f.cache = repository.NewPublishedCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	p := f.scheduler()
	ctx := context.Background()

	result, err := p.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := f.cache.Add(ctx, "a", result.Posts[1].ID); err != nil {
		t.Fatalf("cache add: %v", err)
	}

	result, err = p.Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if result.Posts[1].Status != models.PostStatusDue {
		t.Fatalf("fetch result must keep the sheet status, got %q", result.Posts[1].Status)
	}
	if snap := p.Snapshot(); snap.Posts[1].Status != models.PostStatusPublished || snap.Posts[2].Status != models.PostStatusDue {
		t.Fatalf("unexpected view statuses %q %q", snap.Posts[1].Status, snap.Posts[2].Status)
	}

	// The cache is not authoritative; the sheet still says pending.
	if err := p.RunCycle(ctx); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if calls := f.publisher.Calls(); len(calls) != 1 || calls[0] != "a#3" {
		t.Fatalf("expected row 3 to be published from the sheet status, got %v", calls)
	}
}

func TestMissingCredentialsLoggedOnce(t *testing.T) {
	f := newFixture()
	f.store.Seed(repository.ProfilesTab, repository.ProfilesHeader, profileRow("a", "Alpha", "", ""))
	f.store.Seed("Alpha Posts", repository.ScheduleHeader, scheduleRow("2024-01-01", "10:00", "pending"))
	p := f.scheduler()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := p.RunCycle(ctx); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	if calls := f.publisher.Calls(); len(calls) != 0 {
		t.Fatalf("nothing may be published without credentials, got %v", calls)
	}
	warnings := 0
	for _, entry := range f.state.Logs() {
		if entry.Message == "Missing credentials" {
			warnings++
		}
	}
	if warnings != 1 {
		t.Fatalf("expected one missing credentials log, got %d", warnings)
	}
}
