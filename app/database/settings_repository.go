package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SettingsRepository persists business settings as key/value rows
type SettingsRepository struct {
	db *DB
}

func NewSettingsRepository(db *DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the stored value and whether the key exists
func (r *SettingsRepository) Get(key string) (string, bool, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, true, nil
}

func (r *SettingsRepository) Set(key, value string, now time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, UTC(now))
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// SetIfMissing stores value only when key has never been written
func (r *SettingsRepository) SetIfMissing(key, value string, now time.Time) (bool, error) {
	res, err := r.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO NOTHING
	`, key, value, UTC(now))
	if err != nil {
		return false, fmt.Errorf("failed to seed setting %s: %w", key, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
