package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process ExternalStore. Each tab keeps its header as
// element 0 so row numbers line up with a real sheet.
type MemoryStore struct {
	mu    sync.Mutex
	tabs  map[string][][]string
	fail  map[string]error
	calls map[string]int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tabs:  make(map[string][][]string),
		fail:  make(map[string]error),
		calls: make(map[string]int),
	}
}

// Seed replaces a tab with a header and data rows.
func (s *MemoryStore) Seed(tab string, header []string, rows ...[]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := [][]string{append([]string(nil), header...)}
	for _, r := range rows {
		data = append(data, append([]string(nil), r...))
	}
	s.tabs[tab] = data
}

// FailOn makes every later call of op ("fetch", "update", "append",
// "delete", "ensure") return err. A nil err clears the failure.
func (s *MemoryStore) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

func (s *MemoryStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Row returns a copy of the given 1-based row, or nil.
func (s *MemoryStore) Row(tab string, row int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	data := s.tabs[tab]
	if row < 1 || row > len(data) {
		return nil
	}
	return append([]string(nil), data[row-1]...)
}

func (s *MemoryStore) enter(op string) error {
	s.calls[op]++
	return s.fail[op]
}

func (s *MemoryStore) FetchRows(ctx context.Context, tab string) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("fetch"); err != nil {
		return nil, err
	}
	data, ok := s.tabs[tab]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTabNotFound, tab)
	}
	out := make([][]string, 0, len(data))
	for _, r := range data[FirstDataRow-1:] {
		out = append(out, append([]string(nil), r...))
	}
	return out, nil
}

func (s *MemoryStore) UpdateCell(ctx context.Context, tab string, row, col int, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("update"); err != nil {
		return err
	}
	data, ok := s.tabs[tab]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTabNotFound, tab)
	}
	if row < FirstDataRow {
		return ErrInvalidRow
	}
	for len(data) < row {
		data = append(data, nil)
	}
	r := data[row-1]
	for len(r) <= col {
		r = append(r, "")
	}
	r[col] = value
	data[row-1] = r
	s.tabs[tab] = data
	return nil
}

func (s *MemoryStore) AppendRow(ctx context.Context, tab string, values []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("append"); err != nil {
		return err
	}
	data, ok := s.tabs[tab]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTabNotFound, tab)
	}
	s.tabs[tab] = append(data, append([]string(nil), values...))
	return nil
}

func (s *MemoryStore) DeleteRow(ctx context.Context, tab string, row int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("delete"); err != nil {
		return err
	}
	data, ok := s.tabs[tab]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTabNotFound, tab)
	}
	if row < FirstDataRow || row > len(data) {
		return ErrInvalidRow
	}
	s.tabs[tab] = append(data[:row-1], data[row:]...)
	return nil
}

func (s *MemoryStore) EnsureTab(ctx context.Context, tab string, header []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter("ensure"); err != nil {
		return err
	}
	data, ok := s.tabs[tab]
	if !ok || len(data) == 0 {
		s.tabs[tab] = [][]string{append([]string(nil), header...)}
		return nil
	}
	if len(header) > 0 {
		data[0] = append([]string(nil), header...)
	}
	return nil
}
