package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/maheshrc27/sheetflow/internal/models"
	"github.com/maheshrc27/sheetflow/internal/store"
)

// Schedule tab columns.
const (
	ColDay = iota
	ColDate
	ColTime
	ColTheme
	ColTitle
	ColCaption
	ColScript
	ColCTA
	ColStatus
	ColMedia

	scheduleColumnCount
)

var ScheduleHeader = []string{"Day", "Date", "Time", "Theme", "Title", "Caption", "Script", "CTA", "Status", "Media URLs"}

var LogHeader = []string{"Timestamp", "Level", "Message", "Details"}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

var (
	ErrInvalidPost = errors.New("invalid post")

	videoExt = regexp.MustCompile(`(?i)\.(mp4|mov|avi|wmv|m4v)$`)
	nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

	// Layouts that carry their own time of day. The time cell is ignored.
	dateTimeLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"1/2/2006 15:04:05",
		"1/2/2006 15:04",
		"1/2/2006 3:04:05 PM",
		"1/2/2006 3:04 PM",
	}
	dateOnlyLayouts = []string{
		dateLayout,
		"1/2/2006",
		"2 Jan 2006",
		"January 2, 2006",
	}
	timeLayouts = []string{
		timeLayout,
		"15:04:05",
		"3:04 PM",
		"3:04PM",
		"3:04:05 PM",
		"3:04:05PM",
	}
)

type FetchResult struct {
	Posts     []models.ScheduledPost `json:"posts"`
	RowErrors []models.RowError      `json:"row_errors"`
	FetchedAt time.Time              `json:"fetched_at"`
}

// Due returns the due posts in fetch order.
func (r *FetchResult) Due() []models.ScheduledPost {
	var due []models.ScheduledPost
	for _, p := range r.Posts {
		if p.Status == models.PostStatusDue {
			due = append(due, p)
		}
	}
	return due
}

type ScheduleRepository interface {
	Fetch(ctx context.Context, profile *models.Profile, now time.Time) (*FetchResult, error)
	FetchDue(ctx context.Context, profile *models.Profile, now time.Time) ([]models.ScheduledPost, error)
	Append(ctx context.Context, profile *models.Profile, post *models.NewPost) error
	UpdateStatus(ctx context.Context, profile *models.Profile, rowIndex int, status models.PostStatus) error
	Delete(ctx context.Context, profile *models.Profile, rowIndex int) error
	EnsureLayout(ctx context.Context, profile *models.Profile) error
}

type scheduleRepository struct {
	store store.ExternalStore
	loc   *time.Location
}

func NewScheduleRepository(st store.ExternalStore, loc *time.Location) ScheduleRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &scheduleRepository{store: st, loc: loc}
}

func (r *scheduleRepository) Fetch(ctx context.Context, profile *models.Profile, now time.Time) (*FetchResult, error) {
	rows, err := r.store.FetchRows(ctx, profile.ScheduleTab)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to fetch schedule for %s: %w", profile.Name, err)
	}

	result := &FetchResult{
		Posts:     make([]models.ScheduledPost, 0, len(rows)),
		RowErrors: []models.RowError{},
		FetchedAt: now,
	}
	for i, row := range rows {
		post, err := parseScheduleRow(row, i, r.loc)
		if err != nil {
			result.RowErrors = append(result.RowErrors, models.RowError{
				RowIndex: i + store.FirstDataRow,
				Message:  err.Error(),
			})
			continue
		}
		if post == nil {
			continue
		}
		post.Status = models.DeriveStatus(post.StoredStatus, post.ScheduledTime, now)
		result.Posts = append(result.Posts, *post)
	}
	return result, nil
}

func (r *scheduleRepository) FetchDue(ctx context.Context, profile *models.Profile, now time.Time) ([]models.ScheduledPost, error) {
	result, err := r.Fetch(ctx, profile, now)
	if err != nil {
		return nil, err
	}
	return result.Due(), nil
}

func (r *scheduleRepository) Append(ctx context.Context, profile *models.Profile, post *models.NewPost) error {
	if post == nil {
		return fmt.Errorf("%w: post is nil", ErrInvalidPost)
	}
	if post.ScheduledTime.IsZero() {
		return fmt.Errorf("%w: scheduled time is required", ErrInvalidPost)
	}

	urls := make([]string, 0, len(post.MediaURLs))
	for _, u := range post.MediaURLs {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 || len(urls) > models.MaxMediaItems {
		return fmt.Errorf("%w: need between 1 and %d media items, got %d", ErrInvalidPost, models.MaxMediaItems, len(urls))
	}

	at := post.ScheduledTime.In(r.loc)
	row := make([]string, scheduleColumnCount)
	row[ColDay] = at.Weekday().String()
	row[ColDate] = at.Format(dateLayout)
	row[ColTime] = at.Format(timeLayout)
	row[ColTheme] = post.Theme
	row[ColTitle] = post.Title
	row[ColCaption] = post.Caption
	row[ColScript] = post.Script
	row[ColCTA] = post.CTA
	row[ColStatus] = string(models.PostStatusPending)
	row[ColMedia] = strings.Join(urls, ", ")

	if err := r.store.AppendRow(ctx, profile.ScheduleTab, row); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduleRepository) UpdateStatus(ctx context.Context, profile *models.Profile, rowIndex int, status models.PostStatus) error {
	if err := r.store.UpdateCell(ctx, profile.ScheduleTab, rowIndex, ColStatus, string(status)); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduleRepository) Delete(ctx context.Context, profile *models.Profile, rowIndex int) error {
	if err := r.store.DeleteRow(ctx, profile.ScheduleTab, rowIndex); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *scheduleRepository) EnsureLayout(ctx context.Context, profile *models.Profile) error {
	if err := r.store.EnsureTab(ctx, profile.ScheduleTab, ScheduleHeader); err != nil {
		return err
	}
	if profile.LogTab != "" {
		if err := r.store.EnsureTab(ctx, profile.LogTab, LogHeader); err != nil {
			return err
		}
	}
	return nil
}

// parseScheduleRow maps one data row onto a ScheduledPost. dataIndex is the
// 0-based position in the fetch result. A nil post and nil error means the
// row has no date and is not a schedule entry.
func parseScheduleRow(row []string, dataIndex int, loc *time.Location) (*models.ScheduledPost, error) {
	dateCell := cell(row, ColDate)
	if dateCell == "" {
		return nil, nil
	}
	timeCell := cell(row, ColTime)

	scheduled, err := parseScheduledTime(dateCell, timeCell, loc)
	if err != nil {
		return nil, err
	}

	return &models.ScheduledPost{
		ID:            fmt.Sprintf("post_%s_%d", nonAlnum.ReplaceAllString(dateCell+timeCell, ""), dataIndex),
		RowIndex:      dataIndex + store.FirstDataRow,
		Day:           cell(row, ColDay),
		ScheduledTime: scheduled,
		Theme:         cell(row, ColTheme),
		Title:         cell(row, ColTitle),
		Caption:       cell(row, ColCaption),
		Script:        cell(row, ColScript),
		CTA:           cell(row, ColCTA),
		MediaItems:    parseMediaItems(cell(row, ColMedia)),
		StoredStatus:  models.NormalizeStatus(cell(row, ColStatus)),
	}, nil
}

func parseScheduledTime(dateCell, timeCell string, loc *time.Location) (time.Time, error) {
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, dateCell, loc); err == nil {
			return t, nil
		}
	}

	var day time.Time
	parsed := false
	for _, layout := range dateOnlyLayouts {
		if t, err := time.ParseInLocation(layout, dateCell, loc); err == nil {
			day, parsed = t, true
			break
		}
	}
	if !parsed {
		return time.Time{}, fmt.Errorf("unparseable date %q", dateCell)
	}
	if timeCell == "" {
		return day, nil
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, strings.ToUpper(timeCell)); err == nil {
			return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", timeCell)
}

func parseMediaItems(raw string) []models.MediaItem {
	items := []models.MediaItem{}
	for _, part := range strings.Split(raw, ",") {
		u := strings.TrimSpace(part)
		if u == "" {
			continue
		}
		items = append(items, models.MediaItem{URL: u, Kind: classifyMedia(u)})
	}
	return items
}

func classifyMedia(raw string) models.MediaKind {
	path := raw
	if parsed, err := url.Parse(raw); err == nil && parsed.Path != "" {
		path = parsed.Path
	} else if i := strings.IndexAny(raw, "?#"); i >= 0 {
		path = raw[:i]
	}
	if videoExt.MatchString(path) {
		return models.MediaVideo
	}
	return models.MediaImage
}

func cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
