package job

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/maheshrc27/sheetflow/internal/models"
	"github.com/maheshrc27/sheetflow/internal/repository"
	"github.com/maheshrc27/sheetflow/internal/service"
	"github.com/maheshrc27/sheetflow/internal/store"
)

var testNow = time.Date(2024, 1, 2, 12, 0, 0, 0, time.UTC)

type fakePublisher struct {
	mu      sync.Mutex
	calls   []string
	fail    map[string]error
	started chan string
	block   chan struct{}
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{fail: make(map[string]error)}
}

func publishKey(profileID string, row int) string {
	return fmt.Sprintf("%s#%d", profileID, row)
}

func (f *fakePublisher) PublishOne(ctx context.Context, profile *models.Profile, post *models.ScheduledPost, events chan<- service.PublishEvent) (string, error) {
	key := publishKey(profile.ID, post.RowIndex)
	f.mu.Lock()
	f.calls = append(f.calls, key)
	err := f.fail[key]
	f.mu.Unlock()

	if f.started != nil {
		f.started <- post.ID
	}
	if events != nil {
		events <- service.PublishEvent{State: service.StatePublishing, Phase: service.PhasePublishing, At: time.Now()}
	}
	if f.block != nil {
		<-f.block
	}
	if err != nil {
		return "", err
	}
	return "ig_" + key, nil
}

func (f *fakePublisher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func scheduleRow(date, clock, status string) []string {
	return []string{"", date, clock, "", "", "caption " + clock, "", "", status, "https://cdn.test/" + clock + ".jpg"}
}

func profileRow(id, name, account, token string) []string {
	return []string{id, name, account, token, name + " Posts", "Logs - " + name}
}

type fixture struct {
	store     *store.MemoryStore
	profiles  repository.ProfileRepository
	schedule  repository.ScheduleRepository
	publisher *fakePublisher
	cache     repository.PublishedCache
	state     *service.AppState
}

func newFixture() *fixture {
	st := store.NewMemoryStore()
	return &fixture{
		store:     st,
		profiles:  repository.NewProfileRepository(st, "", "Schedules"),
		schedule:  repository.NewScheduleRepository(st, time.UTC),
		publisher: newFakePublisher(),
		state:     service.NewAppState(nil, nil),
	}
}

func (f *fixture) scheduler() *PollingScheduler {
	p := NewPollingScheduler(f.profiles, f.schedule, f.publisher, f.cache, f.state, time.Minute)
	p.now = func() time.Time { return testNow }
	return p
}

func (f *fixture) runner() *BatchCronRunner {
	b := NewBatchCronRunner(f.profiles, f.schedule, f.publisher)
	b.now = func() time.Time { return testNow }
	return b
}

var errBoom = errors.New("boom")
