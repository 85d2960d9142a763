package prefs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const preferencesKey = "preferences"

// SQLiteBackend stores the preferences document as JSON in the
// preferences table.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

func (b *SQLiteBackend) Load() (Preferences, bool, error) {
	var raw string
	err := b.db.QueryRow("SELECT value FROM preferences WHERE key = ?", preferencesKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return Preferences{}, false, nil
	}
	if err != nil {
		return Preferences{}, false, fmt.Errorf("querying preferences: %w", err)
	}

	var p Preferences
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Preferences{}, false, fmt.Errorf("decoding preferences: %w", err)
	}
	return p, true, nil
}

func (b *SQLiteBackend) Save(p Preferences) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}
	_, err = b.db.Exec(`
		INSERT INTO preferences (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		preferencesKey, string(raw), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("storing preferences: %w", err)
	}
	return nil
}
