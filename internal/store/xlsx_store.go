package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/xuri/excelize/v2"
)

// XLSXStore keeps the schedule in a local workbook. It mirrors the layout of
// the hosted spreadsheet so the engine can run offline or as a dry run.
type XLSXStore struct {
	mu   sync.Mutex
	path string
	file *excelize.File
}

func NewXLSXStore(path string) (*XLSXStore, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
		}
		f = excelize.NewFile()
		if err := f.SaveAs(path); err != nil {
			return nil, fmt.Errorf("failed to create workbook %s: %w", path, err)
		}
	}
	return &XLSXStore{path: path, file: f}, nil
}

func (s *XLSXStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func (s *XLSXStore) FetchRows(ctx context.Context, tab string) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireTab(tab); err != nil {
		return nil, err
	}
	rows, err := s.file.GetRows(tab)
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to read rows from %s: %w", tab, err)
	}
	if len(rows) < FirstDataRow {
		return [][]string{}, nil
	}
	return rows[FirstDataRow-1:], nil
}

func (s *XLSXStore) UpdateCell(ctx context.Context, tab string, row, col int, value string) error {
	if row < FirstDataRow {
		return ErrInvalidRow
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireTab(tab); err != nil {
		return err
	}
	cell, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return err
	}
	if err := s.file.SetCellValue(tab, cell, value); err != nil {
		return fmt.Errorf("failed to update %s!%s: %w", tab, cell, err)
	}
	return s.save()
}

func (s *XLSXStore) AppendRow(ctx context.Context, tab string, values []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireTab(tab); err != nil {
		return err
	}
	rows, err := s.file.GetRows(tab)
	if err != nil {
		return fmt.Errorf("failed to read rows from %s: %w", tab, err)
	}

	next := len(rows) + 1
	if next < FirstDataRow {
		next = FirstDataRow
	}
	cell, err := excelize.CoordinatesToCellName(1, next)
	if err != nil {
		return err
	}
	if err := s.file.SetSheetRow(tab, cell, &values); err != nil {
		return fmt.Errorf("failed to append row to %s: %w", tab, err)
	}
	return s.save()
}

func (s *XLSXStore) DeleteRow(ctx context.Context, tab string, row int) error {
	if row < FirstDataRow {
		return ErrInvalidRow
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireTab(tab); err != nil {
		return err
	}
	if err := s.file.RemoveRow(tab, row); err != nil {
		return fmt.Errorf("failed to delete row %d from %s: %w", row, tab, err)
	}
	return s.save()
}

func (s *XLSXStore) EnsureTab(ctx context.Context, tab string, header []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, err := s.file.GetSheetIndex(tab)
	if err != nil {
		return err
	}
	if idx == -1 {
		if _, err := s.file.NewSheet(tab); err != nil {
			return fmt.Errorf("failed to add tab %s: %w", tab, err)
		}
	}
	if len(header) > 0 {
		if err := s.file.SetSheetRow(tab, "A1", &header); err != nil {
			return fmt.Errorf("failed to write header for %s: %w", tab, err)
		}
	}
	return s.save()
}

func (s *XLSXStore) requireTab(tab string) error {
	idx, err := s.file.GetSheetIndex(tab)
	if err != nil {
		return err
	}
	if idx == -1 {
		return fmt.Errorf("%w: %s", ErrTabNotFound, tab)
	}
	return nil
}

func (s *XLSXStore) save() error {
	if err := s.file.SaveAs(s.path); err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}
