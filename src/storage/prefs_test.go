package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenRunsMigrationsIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Re-opening the same file must not re-apply migrations.
	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	row := db.DB().QueryRow("SELECT COUNT(*) FROM schema_migrations")
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 2, count)
}

func TestSettingsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	val, err := GetSetting(ctx, db.DB(), "theme")
	require.NoError(t, err)
	assert.Empty(t, val, "missing keys read as empty, not as errors")

	require.NoError(t, SetSetting(ctx, db.DB(), "theme", "dark"))
	require.NoError(t, SetSetting(ctx, db.DB(), "theme", "light"))

	val, err = GetSetting(ctx, db.DB(), "theme")
	require.NoError(t, err)
	assert.Equal(t, "light", val)
}

func TestRecordSelectedMaintainsRecents(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.RecordSelected(ctx, "sess-a"))
	require.NoError(t, db.RecordSelected(ctx, "sess-b"))
	require.NoError(t, db.RecordSelected(ctx, "sess-a"))

	last, err := LastSelected(ctx, db.DB())
	require.NoError(t, err)
	assert.Equal(t, "sess-a", last)

	recents, err := Recents(ctx, db.DB(), 10)
	require.NoError(t, err)
	require.Len(t, recents, 2)
	assert.Equal(t, "sess-a", recents[0].ID)
	assert.Equal(t, 2, recents[0].TimesSelected)
	assert.Equal(t, "sess-b", recents[1].ID)
	assert.Equal(t, 1, recents[1].TimesSelected)
	assert.False(t, recents[0].LastSelectedAt.Before(recents[1].LastSelectedAt))
}

func TestRecentsHonorsLimit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3", "s4"} {
		require.NoError(t, db.RecordSelected(ctx, id))
	}

	recents, err := Recents(ctx, db.DB(), 2)
	require.NoError(t, err)
	assert.Len(t, recents, 2)
	assert.Equal(t, "s4", recents[0].ID)
}

func TestSetSessionTitle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.RecordSelected(ctx, "sess-a"))
	require.NoError(t, SetSessionTitle(ctx, db.DB(), "sess-a", "fix the flaky test"))

	recents, err := Recents(ctx, db.DB(), 1)
	require.NoError(t, err)
	require.Len(t, recents, 1)
	assert.Equal(t, "fix the flaky test", recents[0].Title)
}

func TestForgetSessionClearsPointer(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.RecordSelected(ctx, "sess-a"))
	require.NoError(t, db.RecordSelected(ctx, "sess-b"))

	// Forgetting a non-current session leaves the pointer alone.
	require.NoError(t, ForgetSession(ctx, db.DB(), "sess-a"))
	last, err := LastSelected(ctx, db.DB())
	require.NoError(t, err)
	assert.Equal(t, "sess-b", last)

	// Forgetting the current one clears it.
	require.NoError(t, ForgetSession(ctx, db.DB(), "sess-b"))
	last, err = LastSelected(ctx, db.DB())
	require.NoError(t, err)
	assert.Empty(t, last)

	recents, err := Recents(ctx, db.DB(), 10)
	require.NoError(t, err)
	assert.Empty(t, recents)
}
