package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SetPreference upserts a preference.
func (s *SQLiteStorage) SetPreference(ctx context.Context, key, value string) error {
	if key == "" {
		return &StorageError{Op: "set preference", Err: errors.New("empty key")}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	db, err := s.handle("set preference")
	if err != nil {
		return err
	}

	err = withBusyRetry(ctx, func() error {
		_, execErr := db.ExecContext(ctx, `
			INSERT INTO user_preferences (key, value, updated_date)
			VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET
				value = excluded.value,
				updated_date = excluded.updated_date
		`, key, value, formatTimestamp(time.Now()))
		return execErr
	})
	if err != nil {
		return &StorageError{Op: "set preference", Err: err}
	}
	return nil
}

// GetPreference returns the value for key.
func (s *SQLiteStorage) GetPreference(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.handle("get preference")
	if err != nil {
		return "", err
	}

	var value sql.NullString
	err = db.QueryRowContext(ctx, "SELECT value FROM user_preferences WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", &StorageError{Op: "get preference", Err: fmt.Errorf("%w: %q", ErrNotFound, key)}
	}
	if err != nil {
		return "", &StorageError{Op: "get preference", Err: err}
	}
	return value.String, nil
}

// ListPreferences returns all preferences ordered by key.
func (s *SQLiteStorage) ListPreferences(ctx context.Context) ([]UserPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	db, err := s.handle("list preferences")
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, "SELECT key, value, updated_date FROM user_preferences ORDER BY key ASC")
	if err != nil {
		return nil, &StorageError{Op: "list preferences", Err: err}
	}
	defer rows.Close()

	var prefs []UserPreference
	for rows.Next() {
		var (
			p       UserPreference
			value   sql.NullString
			updated any
		)
		if err := rows.Scan(&p.Key, &value, &updated); err != nil {
			return nil, &StorageError{Op: "list preferences", Err: err}
		}
		p.Value = value.String
		if t, ok := parseTimestamp(updated); ok {
			p.UpdatedAt = t
		}
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list preferences", Err: err}
	}
	return prefs, nil
}
