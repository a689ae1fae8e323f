package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTempDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(Config{
		Path: filepath.Join(t.TempDir(), "nested", "wheeler.db"),
		Name: "wheeler",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNew_CreatesDirectoryAndDefaults(t *testing.T) {
	db := newTempDB(t)

	assert.Equal(t, ProfileShared, db.Profile())
	assert.Equal(t, "wheeler", db.Name())
	assert.True(t, filepath.IsAbs(db.Path()))
	assert.FileExists(t, db.Path())
}

func TestBuildConnectionString(t *testing.T) {
	shared := buildConnectionString("/data/wheeler.db", ProfileShared)
	assert.Contains(t, shared, "/data/wheeler.db?_pragma=journal_mode(WAL)")
	assert.Contains(t, shared, "busy_timeout(10000)")
	assert.Contains(t, shared, "foreign_keys(1)")

	uri := buildConnectionString("file:test?mode=memory", ProfileStandard)
	assert.Contains(t, uri, "file:test?mode=memory&_pragma=journal_mode(WAL)")
	assert.Contains(t, uri, "synchronous(NORMAL)")
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := newTempDB(t)

	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate())

	for _, table := range []string{"symbols", "options", "long_positions", "ibkr_sync_runs"} {
		var name string
		err := db.Conn().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name = ?", table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_EnforcesSingleOpenOptionPerIdentity(t *testing.T) {
	db := newTempDB(t)
	require.NoError(t, db.Migrate())

	_, err := db.Conn().Exec(`INSERT INTO symbols (symbol) VALUES ('AAPL')`)
	require.NoError(t, err)

	insert := `INSERT INTO options (symbol, type, opened, closed, strike, expiration, premium, contracts)
		VALUES ('AAPL', 'Put', '2024-01-02', ?, 150, '2024-06-21', 3.5, 1)`

	_, err = db.Conn().Exec(insert, nil)
	require.NoError(t, err)

	// A closed duplicate is allowed
	_, err = db.Conn().Exec(insert, "2024-02-01")
	require.NoError(t, err)

	// A second open duplicate is not
	_, err = db.Conn().Exec(insert, nil)
	assert.Error(t, err)
}

func TestWithTransaction(t *testing.T) {
	db := newTempDB(t)
	_, err := db.Conn().Exec("CREATE TABLE t (v INTEGER)")
	require.NoError(t, err)

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT INTO t (v) VALUES (1)")
		return err
	})
	require.NoError(t, err)

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, _ = tx.Exec("INSERT INTO t (v) VALUES (2)")
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction failed: boom")

	err = WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		_, _ = tx.Exec("INSERT INTO t (v) VALUES (3)")
		panic("unexpected")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic in transaction")

	var count int
	require.NoError(t, db.Conn().QueryRow("SELECT COUNT(*) FROM t").Scan(&count))
	assert.Equal(t, 1, count)

	assert.Error(t, WithTransaction(nil, func(*sql.Tx) error { return nil }))
}

func TestHealthCheckAndStats(t *testing.T) {
	db := newTempDB(t)
	require.NoError(t, db.Migrate())
	ctx := context.Background()

	require.NoError(t, db.HealthCheck(ctx))

	stats, err := db.GetStats(ctx)
	require.NoError(t, err)
	assert.Greater(t, stats.PageCount, int64(0))
	assert.Greater(t, stats.PageSize, int64(0))
	assert.Greater(t, stats.SizeBytes, int64(0))
}

func TestWALCheckpoint(t *testing.T) {
	db := newTempDB(t)
	require.NoError(t, db.Migrate())
	ctx := context.Background()

	status, err := db.WALCheckpoint(ctx, "")
	require.NoError(t, err)
	assert.False(t, status.Busy)

	_, err = db.WALCheckpoint(ctx, "DROP TABLE")
	assert.Error(t, err)
}
