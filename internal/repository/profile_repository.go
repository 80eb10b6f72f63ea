package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maheshrc27/sheetflow/internal/models"
	"github.com/maheshrc27/sheetflow/internal/store"
	"github.com/maheshrc27/sheetflow/pkg/utils"
)

const (
	ProfilesTab = "Profiles"
	SettingsTab = "Settings"

	// Tokens written with this prefix are AES-GCM encrypted with SECRET_KEY.
	EncryptedTokenPrefix = "enc:"
)

// Profiles tab columns.
const (
	colProfileID = iota
	colProfileName
	colProfileAccountID
	colProfileToken
	colProfileScheduleTab
	colProfileLogTab
)

var ProfilesHeader = []string{"Profile ID", "Name", "Instagram Account ID", "Access Token", "Tab Name", "Logs Tab Name"}

var SettingsHeader = []string{"Key", "Value"}

var ErrProfileNotFound = errors.New("profile not found")

type ProfileRepository interface {
	List(ctx context.Context) ([]models.Profile, error)
	Get(ctx context.Context, id string) (*models.Profile, error)
	EnsureLayout(ctx context.Context) error
	MarkSynced(ctx context.Context, at time.Time) error
}

type profileRepository struct {
	store       store.ExternalStore
	secretKey   string
	scheduleTab string
}

func NewProfileRepository(st store.ExternalStore, secretKey, defaultScheduleTab string) ProfileRepository {
	if defaultScheduleTab == "" {
		defaultScheduleTab = "Schedules"
	}
	return &profileRepository{store: st, secretKey: secretKey, scheduleTab: defaultScheduleTab}
}

// List reads the Profiles tab. Spreadsheets set up before profiles existed
// keep a single account in the Settings tab; that account is returned as a
// "legacy" profile when the Profiles tab cannot be read.
func (r *profileRepository) List(ctx context.Context) ([]models.Profile, error) {
	rows, err := r.store.FetchRows(ctx, ProfilesTab)
	if err != nil {
		slog.Info("profiles tab unavailable, trying legacy settings", "error", err)
		return r.legacyProfiles(ctx, err)
	}

	profiles := make([]models.Profile, 0, len(rows))
	for i, row := range rows {
		if isBlank(row) {
			continue
		}
		name := cell(row, colProfileName)
		p := models.Profile{
			ID:          orDefault(cell(row, colProfileID), fmt.Sprintf("profile_%d", i)),
			Name:        orDefault(name, "Unnamed Profile"),
			AccountID:   cell(row, colProfileAccountID),
			ScheduleTab: orDefault(cell(row, colProfileScheduleTab), r.scheduleTab),
			LogTab:      orDefault(cell(row, colProfileLogTab), "Logs - "+orDefault(name, "Default")),
		}
		token, err := r.decodeToken(cell(row, colProfileToken))
		if err != nil {
			slog.Info("unable to decrypt profile token", "profile", p.ID, "error", err)
		}
		p.AccessToken = token
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func (r *profileRepository) legacyProfiles(ctx context.Context, cause error) ([]models.Profile, error) {
	settings, err := r.readSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", cause)
	}

	accountID := settings["INSTAGRAM_ACCOUNT_ID"]
	if accountID == "" {
		return []models.Profile{}, nil
	}
	token, err := r.decodeToken(settings["INSTAGRAM_ACCESS_TOKEN"])
	if err != nil {
		slog.Info("unable to decrypt legacy token", "error", err)
	}
	return []models.Profile{{
		ID:          "legacy",
		Name:        "Default Account",
		AccountID:   accountID,
		AccessToken: token,
		ScheduleTab: orDefault(settings["SHEET_TAB_NAME"], r.scheduleTab),
		LogTab:      "Logs",
	}}, nil
}

func (r *profileRepository) Get(ctx context.Context, id string) (*models.Profile, error) {
	profiles, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		if profiles[i].ID == id {
			return &profiles[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
}

// EnsureLayout creates the Profiles and Settings tabs plus the schedule and
// log tab of every profile already listed.
func (r *profileRepository) EnsureLayout(ctx context.Context) error {
	if err := r.store.EnsureTab(ctx, ProfilesTab, ProfilesHeader); err != nil {
		return err
	}
	if err := r.store.EnsureTab(ctx, SettingsTab, SettingsHeader); err != nil {
		return err
	}

	profiles, err := r.List(ctx)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, p := range profiles {
		if !seen[p.ScheduleTab] {
			if err := r.store.EnsureTab(ctx, p.ScheduleTab, ScheduleHeader); err != nil {
				return err
			}
			seen[p.ScheduleTab] = true
		}
		if p.LogTab != "" && !seen[p.LogTab] {
			if err := r.store.EnsureTab(ctx, p.LogTab, LogHeader); err != nil {
				return err
			}
			seen[p.LogTab] = true
		}
	}
	return nil
}

// MarkSynced writes LAST_SYNC into the first Settings row.
func (r *profileRepository) MarkSynced(ctx context.Context, at time.Time) error {
	if err := r.store.UpdateCell(ctx, SettingsTab, store.FirstDataRow, 0, "LAST_SYNC"); err != nil {
		return err
	}
	return r.store.UpdateCell(ctx, SettingsTab, store.FirstDataRow, 1, at.UTC().Format(time.RFC3339))
}

func (r *profileRepository) readSettings(ctx context.Context) (map[string]string, error) {
	rows, err := r.store.FetchRows(ctx, SettingsTab)
	if err != nil {
		return nil, err
	}
	settings := make(map[string]string, len(rows))
	for _, row := range rows {
		key, value := cell(row, 0), cell(row, 1)
		if key != "" && value != "" {
			settings[key] = value
		}
	}
	return settings, nil
}

func (r *profileRepository) decodeToken(raw string) (string, error) {
	if !strings.HasPrefix(raw, EncryptedTokenPrefix) {
		return raw, nil
	}
	if r.secretKey == "" {
		return "", errors.New("encrypted token but SECRET_KEY is not set")
	}
	return utils.Decrypt(strings.TrimPrefix(raw, EncryptedTokenPrefix), []byte(r.secretKey))
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
