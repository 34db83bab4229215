package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
)

// settingLastSelected is the settings key holding the id of the session the
// watch view opens by default.
const settingLastSelected = "last_selected_session"

// GetSetting retrieves a setting value. A missing key is not an error; it
// returns the empty string.
func GetSetting(ctx context.Context, db sqlscan.Querier, key string) (string, error) {
	query := `SELECT value FROM settings WHERE key = ?`
	var value string
	err := sqlscan.Get(ctx, db, &value, query, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return value, nil
}

// SetSetting writes a setting value, replacing any previous one.
func SetSetting(ctx context.Context, db Execer, key, value string) error {
	query := `INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	_, err := db.ExecContext(ctx, query, key, value, time.Now())
	return err
}

// DeleteSetting removes a setting key if present.
func DeleteSetting(ctx context.Context, db Execer, key string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key)
	return err
}

// RecordSelected bumps the session's recents row: first selection inserts,
// later ones update the timestamp and counter.
func RecordSelected(ctx context.Context, db Execer, sessionID string) error {
	now := time.Now()
	query := `INSERT INTO sessions_seen (id, title, first_selected_at, last_selected_at, times_selected)
		VALUES (?, '', ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			last_selected_at = excluded.last_selected_at,
			times_selected = sessions_seen.times_selected + 1`
	_, err := db.ExecContext(ctx, query, sessionID, now, now)
	return err
}

// SetSessionTitle stores the session's display title alongside its recents
// row, so the recents list is readable without a relay round trip.
func SetSessionTitle(ctx context.Context, db Execer, sessionID, title string) error {
	_, err := db.ExecContext(ctx, `UPDATE sessions_seen SET title = ? WHERE id = ?`, title, sessionID)
	return err
}

// LastSelected returns the id of the most recently selected session, or the
// empty string when nothing was ever selected.
func LastSelected(ctx context.Context, db sqlscan.Querier) (string, error) {
	return GetSetting(ctx, db, settingLastSelected)
}

// Recents lists recently watched sessions, most recent first.
func Recents(ctx context.Context, db sqlscan.Querier, limit int) ([]SeenSession, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT id, title, first_selected_at, last_selected_at, times_selected
		FROM sessions_seen ORDER BY last_selected_at DESC LIMIT ?`
	var sessions []SeenSession
	if err := sqlscan.Select(ctx, db, &sessions, query, limit); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ForgetSession drops a session from the recents list, clearing the
// last-selected pointer if it pointed there. Used when the relay reports
// the session gone.
func ForgetSession(ctx context.Context, db ExecQuerier, sessionID string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM sessions_seen WHERE id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete seen session: %w", err)
	}
	current, err := GetSetting(ctx, db, settingLastSelected)
	if err != nil {
		return err
	}
	if current == sessionID {
		return DeleteSetting(ctx, db, settingLastSelected)
	}
	return nil
}

// RecordSelected satisfies the engine's selection recorder: it bumps the
// recents row and moves the last-selected pointer in one call.
func (d *DB) RecordSelected(ctx context.Context, threadID string) error {
	if err := RecordSelected(ctx, d.db, threadID); err != nil {
		return err
	}
	return SetSetting(ctx, d.db, settingLastSelected, threadID)
}
