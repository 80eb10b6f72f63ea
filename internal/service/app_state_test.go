package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/maheshrc27/sheetflow/internal/models"
)

type memoryPersistence struct {
	settings models.AppSettings
	logs     []*models.LogEntry
	saves    int
}

func (m *memoryPersistence) LoadSettings(ctx context.Context) (*models.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *memoryPersistence) SaveSettings(ctx context.Context, s *models.AppSettings) error {
	m.settings = *s
	m.saves++
	return nil
}

func (m *memoryPersistence) AppendLog(ctx context.Context, entry *models.LogEntry) error {
	e := *entry
	m.logs = append([]*models.LogEntry{&e}, m.logs...)
	return nil
}

func (m *memoryPersistence) ListLogs(ctx context.Context, limit int) ([]*models.LogEntry, error) {
	if len(m.logs) > limit {
		return m.logs[:limit], nil
	}
	return m.logs, nil
}

func (m *memoryPersistence) ClearLogs(ctx context.Context) error {
	m.logs = nil
	return nil
}

func TestAppStateLoadAndSave(t *testing.T) {
	ctx := context.Background()
	persist := &memoryPersistence{settings: models.AppSettings{ActiveProfileID: "p2", AutomationEnabled: true}}

	state := NewAppState(persist, nil)
	if err := state.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if s := state.Settings(); s.ActiveProfileID != "p2" || !s.AutomationEnabled {
		t.Fatalf("settings not loaded: %+v", s)
	}

	if err := state.UpdateSettings(ctx, func(s *models.AppSettings) { s.AutomationEnabled = false }); err != nil {
		t.Fatalf("update: %v", err)
	}
	if persist.saves != 1 || persist.settings.AutomationEnabled {
		t.Fatalf("expected change to be saved, got %+v", persist.settings)
	}
}

func TestAppStateLogRingKeepsNewest(t *testing.T) {
	ctx := context.Background()
	persist := &memoryPersistence{}
	state := NewAppState(persist, nil)

	for i := 0; i < maxLogEntries+5; i++ {
		state.Log(ctx, nil, models.LogLevelInfo, fmt.Sprintf("entry %d", i), "")
	}
	logs := state.Logs()
	if len(logs) != maxLogEntries {
		t.Fatalf("expected %d entries, got %d", maxLogEntries, len(logs))
	}
	if logs[0].Message != fmt.Sprintf("entry %d", maxLogEntries+4) {
		t.Fatalf("expected newest first, got %q", logs[0].Message)
	}

	reloaded := NewAppState(persist, nil)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := len(reloaded.Logs()); got != maxLogEntries {
		t.Fatalf("expected reload to be capped at %d, got %d", maxLogEntries, got)
	}

	if err := state.ClearLogs(ctx); err != nil || len(state.Logs()) != 0 || len(persist.logs) != 0 {
		t.Fatalf("expected logs cleared, err=%v", err)
	}
}
