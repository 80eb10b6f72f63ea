package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/maheshrc27/sheetflow/internal/models"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// StateRepository persists the application state: operator settings and
// the activity log.
type StateRepository interface {
	Migrate(ctx context.Context) error
	LoadSettings(ctx context.Context) (*models.AppSettings, error)
	SaveSettings(ctx context.Context, s *models.AppSettings) error
	AppendLog(ctx context.Context, entry *models.LogEntry) error
	ListLogs(ctx context.Context, limit int) ([]*models.LogEntry, error)
	ClearLogs(ctx context.Context) error
}

type stateRepository struct {
	db *sql.DB
}

func NewStateRepository(db *sql.DB) StateRepository {
	return &stateRepository{db: db}
}

// Migrate runs the embedded SQL files in name order.
func (r *stateRepository) Migrate(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		content, err := migrationFiles.ReadFile("migrations/" + e.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		query := strings.TrimSpace(string(content))
		if query == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("exec migration %s: %w", e.Name(), err)
		}
	}
	return nil
}

func (r *stateRepository) LoadSettings(ctx context.Context) (*models.AppSettings, error) {
	query := `SELECT active_profile_id, automation_enabled, last_sync, updated_at FROM app_settings WHERE id = 1`

	var s models.AppSettings
	var lastSync sql.NullTime
	err := r.db.QueryRowContext(ctx, query).Scan(&s.ActiveProfileID, &s.AutomationEnabled, &lastSync, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return &models.AppSettings{}, nil
		}
		slog.Info(err.Error())
		return nil, err
	}
	if lastSync.Valid {
		s.LastSync = lastSync.Time
	}
	return &s, nil
}

func (r *stateRepository) SaveSettings(ctx context.Context, s *models.AppSettings) error {
	query := `
		INSERT INTO app_settings (id, active_profile_id, automation_enabled, last_sync, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET active_profile_id = EXCLUDED.active_profile_id,
			automation_enabled = EXCLUDED.automation_enabled,
			last_sync = EXCLUDED.last_sync,
			updated_at = EXCLUDED.updated_at
	`
	var lastSync sql.NullTime
	if !s.LastSync.IsZero() {
		lastSync = sql.NullTime{Time: s.LastSync, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query, s.ActiveProfileID, s.AutomationEnabled, lastSync, time.Now())
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *stateRepository) AppendLog(ctx context.Context, entry *models.LogEntry) error {
	query := `
		INSERT INTO activity_logs (id, profile_id, level, message, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, entry.ID, entry.ProfileID, string(entry.Level), entry.Message, entry.Details, entry.Timestamp)
	if err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}

func (r *stateRepository) ListLogs(ctx context.Context, limit int) ([]*models.LogEntry, error) {
	query := `
		SELECT id, profile_id, level, message, details, created_at
		FROM activity_logs
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}
	defer rows.Close()

	var entries []*models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		var level string
		if err := rows.Scan(&e.ID, &e.ProfileID, &level, &e.Message, &e.Details, &e.Timestamp); err != nil {
			slog.Info(err.Error())
			return nil, err
		}
		e.Level = models.LogLevel(level)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

func (r *stateRepository) ClearLogs(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM activity_logs`); err != nil {
		slog.Info(err.Error())
		return err
	}
	return nil
}
