package repository

import (
	"context"
	"testing"
	"time"

	"github.com/maheshrc27/sheetflow/internal/models"
	"github.com/maheshrc27/sheetflow/internal/store"
)

func testProfile() *models.Profile {
	return &models.Profile{ID: "p1", Name: "Main", AccountID: "acc", AccessToken: "tok", ScheduleTab: "Schedules", LogTab: "Logs - Main"}
}

func scheduleRow(date, tm, caption, status, media string) []string {
	row := make([]string, scheduleColumnCount)
	row[ColDay] = "Monday"
	row[ColDate] = date
	row[ColTime] = tm
	row[ColCaption] = caption
	row[ColStatus] = status
	row[ColMedia] = media
	return row
}

func TestScheduleColumnOrder(t *testing.T) {
	want := []string{"Day", "Date", "Time", "Theme", "Title", "Caption", "Script", "CTA", "Status", "Media URLs"}
	if len(ScheduleHeader) != len(want) || scheduleColumnCount != len(want) {
		t.Fatalf("expected %d columns, header has %d, count is %d", len(want), len(ScheduleHeader), scheduleColumnCount)
	}
	for i, name := range want {
		if ScheduleHeader[i] != name {
			t.Fatalf("column %d: expected %s, got %s", i, name, ScheduleHeader[i])
		}
	}
	cols := map[string]int{
		"Day": ColDay, "Date": ColDate, "Time": ColTime, "Theme": ColTheme, "Title": ColTitle,
		"Caption": ColCaption, "Script": ColScript, "CTA": ColCTA, "Status": ColStatus, "Media URLs": ColMedia,
	}
	for name, idx := range cols {
		if ScheduleHeader[idx] != name {
			t.Fatalf("constant for %s points at %s", name, ScheduleHeader[idx])
		}
	}
}

func TestParseScheduleRow(t *testing.T) {
	row := scheduleRow("2024-01-01", "10:00", "hello", "Pending", "https://cdn.test/a.jpg, https://cdn.test/b.MP4?tr=x ,, https://cdn.test/c.png")
	post, err := parseScheduleRow(row, 3, time.UTC)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if post.RowIndex != 5 {
		t.Fatalf("expected row 5, got %d", post.RowIndex)
	}
	if post.ID != "post_202401011000_3" {
		t.Fatalf("unexpected id %s", post.ID)
	}
	if !post.ScheduledTime.Equal(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time %s", post.ScheduledTime)
	}
	if len(post.MediaItems) != 3 {
		t.Fatalf("expected 3 media items, got %d", len(post.MediaItems))
	}
	kinds := []models.MediaKind{models.MediaImage, models.MediaVideo, models.MediaImage}
	for i, k := range kinds {
		if post.MediaItems[i].Kind != k {
			t.Fatalf("item %d: expected %s, got %s", i, k, post.MediaItems[i].Kind)
		}
	}
	if post.StoredStatus != models.PostStatusPending {
		t.Fatalf("expected pending, got %s", post.StoredStatus)
	}
}

func TestParseScheduleRowSkipsEmptyDate(t *testing.T) {
	post, err := parseScheduleRow(scheduleRow("", "10:00", "x", "", "a.jpg"), 0, time.UTC)
	if err != nil || post != nil {
		t.Fatalf("expected skip, got post=%v err=%v", post, err)
	}
}

func TestParseScheduledTimeLayouts(t *testing.T) {
	want := time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	cases := []struct{ date, tm string }{
		{"2024-03-05", "14:30"},
		{"2024-03-05", "14:30:00"},
		{"2024-03-05", "2:30 pm"},
		{"3/5/2024", "14:30"},
		{"5 Mar 2024", "14:30"},
		{"2024-03-05T14:30", ""},
		{"2024-03-05 14:30", "09:00"},
		{"2024-03-05T14:30:00Z", ""},
		// Google Sheets display formats
		{"2024-03-05", "2:30:00 PM"},
		{"2024-03-05", "2:30:00pm"},
		{"3/5/2024 14:30:00", ""},
		{"3/5/2024 14:30", ""},
		{"3/5/2024 2:30:00 PM", ""},
		{"3/5/2024 2:30 PM", "09:00"},
	}
	for _, c := range cases {
		got, err := parseScheduledTime(c.date, c.tm, time.UTC)
		if err != nil {
			t.Fatalf("%q %q: %v", c.date, c.tm, err)
		}
		if !got.Equal(want) {
			t.Fatalf("%q %q: expected %s, got %s", c.date, c.tm, want, got)
		}
	}

	midnight, err := parseScheduledTime("2024-03-05", "", time.UTC)
	if err != nil || !midnight.Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected midnight, got %s err=%v", midnight, err)
	}
}

func TestFetchReportsBadDatesAndExcludesThem(t *testing.T) {
	st := store.NewMemoryStore()
	st.Seed("Schedules", ScheduleHeader,
		scheduleRow("not a date", "10:00", "broken", "pending", "a.jpg"),
		scheduleRow("2024-01-01", "25:99", "bad time", "pending", "a.jpg"),
		scheduleRow("2024-01-01", "10:00", "good", "pending", "a.jpg"),
	)
	repo := NewScheduleRepository(st, time.UTC)
	now := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

	result, err := repo.Fetch(context.Background(), testProfile(), now)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(result.RowErrors) != 2 || result.RowErrors[0].RowIndex != 2 || result.RowErrors[1].RowIndex != 3 {
		t.Fatalf("unexpected row errors: %+v", result.RowErrors)
	}
	due := result.Due()
	if len(due) != 1 || due[0].Caption != "good" || due[0].RowIndex != 4 {
		t.Fatalf("expected only the good row to be due, got %+v", due)
	}
}

func TestFetchDueDerivesStatus(t *testing.T) {
	st := store.NewMemoryStore()
	st.Seed("Schedules", ScheduleHeader,
		scheduleRow("2024-01-01", "10:00", "past pending", "pending", "a.jpg"),
		scheduleRow("2024-01-01", "09:00", "past published", "published", "a.jpg"),
		scheduleRow("2024-01-01", "12:00", "future", "pending", "a.jpg"),
		scheduleRow("2024-01-01", "08:00", "past failed", "failed", "a.jpg"),
	)
	repo := NewScheduleRepository(st, time.UTC)
	now := time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC)

	due, err := repo.FetchDue(context.Background(), testProfile(), now)
	if err != nil {
		t.Fatalf("fetch due: %v", err)
	}
	if len(due) != 2 || due[0].Caption != "past pending" || due[1].Caption != "past failed" {
		t.Fatalf("unexpected due posts: %+v", due)
	}
}

func TestAppendThenFetchRoundTrip(t *testing.T) {
	ctx := context.Background()
	loc, err := time.LoadLocation("Asia/Jakarta")
	if err != nil {
		loc = time.FixedZone("WIB", 7*3600)
	}
	st := store.NewMemoryStore()
	st.Seed("Schedules", ScheduleHeader)
	repo := NewScheduleRepository(st, loc)
	profile := testProfile()

	at := time.Date(2024, 1, 1, 10, 0, 0, 0, loc)
	in := &models.NewPost{
		ScheduledTime: at,
		Title:         "hook",
		Caption:       "launch day",
		MediaURLs:     []string{"https://cdn.test/1.jpg", "https://cdn.test/2.mp4"},
	}
	if err := repo.Append(ctx, profile, in); err != nil {
		t.Fatalf("append: %v", err)
	}

	row := st.Row("Schedules", 2)
	if row[ColDay] != "Monday" || row[ColStatus] != "pending" {
		t.Fatalf("unexpected stored row %v", row)
	}

	due, err := repo.FetchDue(ctx, profile, at.Add(time.Hour))
	if err != nil {
		t.Fatalf("fetch due: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 due post, got %d", len(due))
	}
	got := due[0]
	if got.Caption != in.Caption || !got.ScheduledTime.Equal(at) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if len(got.MediaItems) != 2 || got.MediaItems[0].URL != in.MediaURLs[0] || got.MediaItems[1].URL != in.MediaURLs[1] {
		t.Fatalf("media mismatch: %+v", got.MediaItems)
	}
	if got.MediaItems[1].Kind != models.MediaVideo {
		t.Fatalf("expected second item to be a video")
	}
}

func TestAppendRejectsBadMediaCounts(t *testing.T) {
	st := store.NewMemoryStore()
	st.Seed("Schedules", ScheduleHeader)
	repo := NewScheduleRepository(st, time.UTC)

	tooMany := make([]string, models.MaxMediaItems+1)
	for i := range tooMany {
		tooMany[i] = "https://cdn.test/x.jpg"
	}
	for _, urls := range [][]string{nil, {" "}, tooMany} {
		err := repo.Append(context.Background(), testProfile(), &models.NewPost{ScheduledTime: time.Now(), MediaURLs: urls})
		if err == nil {
			t.Fatalf("expected error for %d urls", len(urls))
		}
	}
	if st.Calls("append") != 0 {
		t.Fatalf("store should not be written")
	}
}

func TestUpdateStatusWritesStatusColumn(t *testing.T) {
	st := store.NewMemoryStore()
	st.Seed("Schedules", ScheduleHeader, scheduleRow("2024-01-01", "10:00", "x", "pending", "a.jpg"))
	repo := NewScheduleRepository(st, time.UTC)

	if err := repo.UpdateStatus(context.Background(), testProfile(), 2, models.PostStatusPublished); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := st.Row("Schedules", 2)[ColStatus]; got != "published" {
		t.Fatalf("expected published, got %q", got)
	}
}
