package store

import (
	"context"
	"errors"
)

// ExternalStore is a spreadsheet seen as a row-oriented datastore. Row
// numbers are 1-based and row 1 of every tab holds the header, so FetchRows
// returns data starting at row 2: rows[i] lives at row i+2. Columns are
// 0-based (A = 0).
type ExternalStore interface {
	FetchRows(ctx context.Context, tab string) ([][]string, error)
	UpdateCell(ctx context.Context, tab string, row, col int, value string) error
	AppendRow(ctx context.Context, tab string, values []string) error
	DeleteRow(ctx context.Context, tab string, row int) error
	EnsureTab(ctx context.Context, tab string, header []string) error
}

// FirstDataRow is the sheet row that holds rows[0] of a FetchRows result.
const FirstDataRow = 2

var (
	ErrTabNotFound = errors.New("tab not found")
	ErrInvalidRow  = errors.New("invalid row index")
	ErrQueueClosed = errors.New("write queue closed")
)
