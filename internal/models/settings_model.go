package models

import "time"

type AppSettings struct {
	ActiveProfileID   string    `db:"active_profile_id" json:"active_profile_id"`
	AutomationEnabled bool      `db:"automation_enabled" json:"automation_enabled"`
	LastSync          time.Time `db:"last_sync" json:"last_sync"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}
