package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/maheshrc27/sheetflow/internal/models"
	"github.com/maheshrc27/sheetflow/internal/store"
)

const maxLogEntries = 100

// StatePersistence is where AppState loads from at start and saves to on
// every change.
type StatePersistence interface {
	LoadSettings(ctx context.Context) (*models.AppSettings, error)
	SaveSettings(ctx context.Context, s *models.AppSettings) error
	AppendLog(ctx context.Context, entry *models.LogEntry) error
	ListLogs(ctx context.Context, limit int) ([]*models.LogEntry, error)
	ClearLogs(ctx context.Context) error
}

// AppState holds operator settings and the recent activity log. It is passed
// explicitly to whatever needs it.
type AppState struct {
	mu       sync.RWMutex
	settings models.AppSettings
	logs     []models.LogEntry

	persist StatePersistence
	sheet   store.ExternalStore
}

// NewAppState builds the state object. persist and sheet may be nil; with a
// sheet, log entries are also appended to the profile's log tab.
func NewAppState(persist StatePersistence, sheet store.ExternalStore) *AppState {
	return &AppState{persist: persist, sheet: sheet}
}

func (a *AppState) Load(ctx context.Context) error {
	if a.persist == nil {
		return nil
	}

	settings, err := a.persist.LoadSettings(ctx)
	if err != nil {
		return err
	}
	entries, err := a.persist.ListLogs(ctx, maxLogEntries)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings = *settings
	a.logs = make([]models.LogEntry, 0, len(entries))
	for _, e := range entries {
		a.logs = append(a.logs, *e)
	}
	return nil
}

func (a *AppState) Settings() models.AppSettings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings
}

// UpdateSettings applies fn and saves the result.
func (a *AppState) UpdateSettings(ctx context.Context, fn func(s *models.AppSettings)) error {
	a.mu.Lock()
	next := a.settings
	fn(&next)
	a.settings = next
	a.mu.Unlock()

	if a.persist == nil {
		return nil
	}
	if err := a.persist.SaveSettings(ctx, &next); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

// Log records an activity entry. Persistence and the sheet mirror are best
// effort; a failure there is written to the process log only.
func (a *AppState) Log(ctx context.Context, profile *models.Profile, level models.LogLevel, message, details string) models.LogEntry {
	entry := models.LogEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Details:   details,
	}
	if profile != nil {
		entry.ProfileID = profile.ID
	}

	a.mu.Lock()
	a.logs = append([]models.LogEntry{entry}, a.logs...)
	if len(a.logs) > maxLogEntries {
		a.logs = a.logs[:maxLogEntries]
	}
	a.mu.Unlock()

	attrs := []any{"level", level, "profile", entry.ProfileID}
	if details != "" {
		attrs = append(attrs, "details", details)
	}
	if level == models.LogLevelError {
		slog.Error(message, attrs...)
	} else {
		slog.Info(message, attrs...)
	}

	if a.persist != nil {
		if err := a.persist.AppendLog(ctx, &entry); err != nil {
			slog.Info("unable to persist activity log", "error", err)
		}
	}
	if a.sheet != nil && profile != nil && profile.LogTab != "" {
		row := []string{entry.Timestamp.Format(time.RFC3339), string(level), message, details}
		if err := a.sheet.AppendRow(ctx, profile.LogTab, row); err != nil {
			slog.Info("unable to mirror activity log to sheet", "tab", profile.LogTab, "error", err)
		}
	}
	return entry
}

// Logs returns the newest entries first.
func (a *AppState) Logs() []models.LogEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]models.LogEntry(nil), a.logs...)
}

func (a *AppState) ClearLogs(ctx context.Context) error {
	a.mu.Lock()
	a.logs = nil
	a.mu.Unlock()

	if a.persist == nil {
		return nil
	}
	return a.persist.ClearLogs(ctx)
}
