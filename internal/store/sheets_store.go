package store

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/xuri/excelize/v2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsStore talks to one spreadsheet through the Sheets v4 API using a
// service account. Every call waits on a per-minute limiter and runs through
// a circuit breaker so an outage fails fast instead of piling up requests.
type SheetsStore struct {
	svc           *sheets.Service
	spreadsheetID string
	limiter       *rate.Limiter
	breaker       *gobreaker.CircuitBreaker

	mu       sync.Mutex
	sheetIDs map[string]int64
}

func NewSheetsStore(ctx context.Context, spreadsheetID, credentialsJSON string, requestsPerMinute int) (*SheetsStore, error) {
	if spreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is empty")
	}
	if credentialsJSON == "" {
		return nil, fmt.Errorf("service account credentials are empty")
	}

	conf, err := google.JWTConfigFromJSON([]byte(credentialsJSON), sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return NewSheetsStoreWithService(svc, spreadsheetID, requestsPerMinute), nil
}

// NewSheetsStoreWithService wraps an already configured Sheets client.
func NewSheetsStoreWithService(svc *sheets.Service, spreadsheetID string, requestsPerMinute int) *SheetsStore {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}

	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "SheetsAPI",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	})

	return &SheetsStore{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		limiter:       rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst),
		breaker:       breaker,
		sheetIDs:      make(map[string]int64),
	}
}

func (s *SheetsStore) call(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.breaker.Execute(fn)
}

func (s *SheetsStore) FetchRows(ctx context.Context, tab string) ([][]string, error) {
	res, err := s.call(ctx, func() (interface{}, error) {
		return s.svc.Spreadsheets.Values.Get(s.spreadsheetID, a1Range(tab, "A2:Z")).Context(ctx).Do()
	})
	if err != nil {
		slog.Info(err.Error())
		return nil, fmt.Errorf("failed to fetch rows from %s: %w", tab, err)
	}

	vr := res.(*sheets.ValueRange)
	rows := make([][]string, 0, len(vr.Values))
	for _, raw := range vr.Values {
		row := make([]string, len(raw))
		for i, cell := range raw {
			row[i] = fmt.Sprint(cell)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *SheetsStore) UpdateCell(ctx context.Context, tab string, row, col int, value string) error {
	if row < FirstDataRow {
		return ErrInvalidRow
	}
	cell, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return err
	}

	body := &sheets.ValueRange{Values: [][]interface{}{{value}}}
	_, err = s.call(ctx, func() (interface{}, error) {
		return s.svc.Spreadsheets.Values.Update(s.spreadsheetID, a1Range(tab, cell), body).
			ValueInputOption("USER_ENTERED").Context(ctx).Do()
	})
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("failed to update %s!%s: %w", tab, cell, err)
	}
	return nil
}

func (s *SheetsStore) AppendRow(ctx context.Context, tab string, values []string) error {
	body := &sheets.ValueRange{Values: [][]interface{}{toInterfaces(values)}}
	_, err := s.call(ctx, func() (interface{}, error) {
		return s.svc.Spreadsheets.Values.Append(s.spreadsheetID, a1Range(tab, "A1"), body).
			ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	})
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("failed to append row to %s: %w", tab, err)
	}
	return nil
}

func (s *SheetsStore) DeleteRow(ctx context.Context, tab string, row int) error {
	if row < FirstDataRow {
		return ErrInvalidRow
	}
	sheetID, err := s.sheetID(ctx, tab)
	if err != nil {
		return err
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:         sheetID,
					Dimension:       "ROWS",
					StartIndex:      int64(row - 1),
					EndIndex:        int64(row),
					ForceSendFields: []string{"SheetId", "StartIndex"},
				},
			},
		}},
	}
	_, err = s.call(ctx, func() (interface{}, error) {
		return s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
	})
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("failed to delete row %d from %s: %w", row, tab, err)
	}
	return nil
}

func (s *SheetsStore) EnsureTab(ctx context.Context, tab string, header []string) error {
	if _, err := s.sheetID(ctx, tab); err != nil {
		req := &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{{
				AddSheet: &sheets.AddSheetRequest{
					Properties: &sheets.SheetProperties{
						Title:          tab,
						GridProperties: &sheets.GridProperties{FrozenRowCount: 1},
					},
				},
			}},
		}
		_, err = s.call(ctx, func() (interface{}, error) {
			return s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do()
		})
		if err != nil {
			slog.Info(err.Error())
			return fmt.Errorf("failed to add tab %s: %w", tab, err)
		}
		s.forgetSheetIDs()
	}

	if len(header) == 0 {
		return nil
	}

	body := &sheets.ValueRange{Values: [][]interface{}{toInterfaces(header)}}
	_, err := s.call(ctx, func() (interface{}, error) {
		return s.svc.Spreadsheets.Values.Update(s.spreadsheetID, a1Range(tab, "A1"), body).
			ValueInputOption("RAW").Context(ctx).Do()
	})
	if err != nil {
		slog.Info(err.Error())
		return fmt.Errorf("failed to write header for %s: %w", tab, err)
	}
	return nil
}

func (s *SheetsStore) sheetID(ctx context.Context, tab string) (int64, error) {
	s.mu.Lock()
	id, ok := s.sheetIDs[tab]
	s.mu.Unlock()
	if ok {
		return id, nil
	}

	res, err := s.call(ctx, func() (interface{}, error) {
		return s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	})
	if err != nil {
		slog.Info(err.Error())
		return 0, fmt.Errorf("failed to load spreadsheet metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sh := range res.(*sheets.Spreadsheet).Sheets {
		if sh.Properties != nil {
			s.sheetIDs[sh.Properties.Title] = sh.Properties.SheetId
		}
	}
	id, ok = s.sheetIDs[tab]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrTabNotFound, tab)
	}
	return id, nil
}

func (s *SheetsStore) forgetSheetIDs() {
	s.mu.Lock()
	s.sheetIDs = make(map[string]int64)
	s.mu.Unlock()
}

// a1Range quotes the tab name so titles with spaces such as "Logs - Main"
// resolve correctly.
func a1Range(tab, cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(tab, "'", "''"), cells)
}

func toInterfaces(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
