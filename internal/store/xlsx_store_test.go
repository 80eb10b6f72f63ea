package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func TestXLSXStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "schedule.xlsx")

	s, err := NewXLSXStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := s.EnsureTab(ctx, "Schedules", []string{"Day", "Date", "Time"}); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := s.AppendRow(ctx, "Schedules", []string{"Monday", "2024-01-01", "10:00"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.AppendRow(ctx, "Schedules", []string{"Tuesday", "2024-01-02", "11:00"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.UpdateCell(ctx, "Schedules", 3, 2, "12:30"); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewXLSXStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	rows, err := reopened.FetchRows(ctx, "Schedules")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 data rows, got %d", len(rows))
	}
	if rows[0][0] != "Monday" || rows[1][2] != "12:30" {
		t.Fatalf("unexpected rows: %v", rows)
	}

	if err := reopened.DeleteRow(ctx, "Schedules", 2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rows, err = reopened.FetchRows(ctx, "Schedules")
	if err != nil {
		t.Fatalf("fetch after delete: %v", err)
	}
	if len(rows) != 1 || rows[0][0] != "Tuesday" {
		t.Fatalf("expected only Tuesday to remain, got %v", rows)
	}
}

func TestXLSXStoreMissingTab(t *testing.T) {
	s, err := NewXLSXStore(filepath.Join(t.TempDir(), "empty.xlsx"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, err := s.FetchRows(context.Background(), "Nope"); !errors.Is(err, ErrTabNotFound) {
		t.Fatalf("expected ErrTabNotFound, got %v", err)
	}
}

func TestXLSXStoreRejectsHeaderRow(t *testing.T) {
	s, err := NewXLSXStore(filepath.Join(t.TempDir(), "h.xlsx"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.DeleteRow(context.Background(), "Sheet1", 1); !errors.Is(err, ErrInvalidRow) {
		t.Fatalf("expected ErrInvalidRow, got %v", err)
	}
}
