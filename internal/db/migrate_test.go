// Package db tests for database migration management.
package db

import (
	"database/sql"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openRaw(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// TestInitialize verifies schema_migrations table creation.
func TestInitialize(t *testing.T) {
	db := openRaw(t)
	m := NewMigrator(db, fstest.MapFS{})

	require.NoError(t, m.Initialize())
	require.NoError(t, m.Initialize(), "Initialize must be idempotent")

	_, err := db.Exec("INSERT INTO schema_migrations (version, applied_at, description, checksum) VALUES (?, ?, ?, ?)",
		1, 123456, "test_migration", strings.Repeat("a", 64))
	assert.NoError(t, err)
}

// TestCurrentVersion verifies version tracking.
func TestCurrentVersion(t *testing.T) {
	db := openRaw(t)
	m := NewMigrator(db, fstest.MapFS{})

	_, err := m.CurrentVersion()
	assert.Error(t, err, "CurrentVersion() should fail before Initialize()")

	require.NoError(t, m.Initialize())
	version, err := m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}

// TestUp_appliesInOrder verifies pending files are applied by version and recorded.
func TestUp_appliesInOrder(t *testing.T) {
	db := openRaw(t)
	fsys := fstest.MapFS{
		"V2__add_column.up.sql": {Data: []byte(`ALTER TABLE t ADD COLUMN name TEXT;`)},
		"V1__create.up.sql":     {Data: []byte(`CREATE TABLE t (id INTEGER PRIMARY KEY);`)},
		"V1__create.down.sql":   {Data: []byte(`DROP TABLE t;`)},
		"README.md":             {Data: []byte(`ignored`)},
		"Vx__bad.up.sql":        {Data: []byte(`ignored`)},
	}
	m := NewMigrator(db, fsys)
	require.NoError(t, m.Initialize())
	require.NoError(t, m.Up())

	_, err := db.Exec(`INSERT INTO t (id, name) VALUES (1, 'x')`)
	require.NoError(t, err)

	applied, err := m.GetAppliedMigrations()
	require.NoError(t, err)
	require.Len(t, applied, 2)
	assert.Equal(t, "create", applied[0].Description)
	assert.Equal(t, "add_column", applied[1].Description)
	assert.Len(t, applied[0].Checksum, 64)

	require.NoError(t, m.Up(), "second Up skips applied migrations")
}

// TestUp_failureRollsBack verifies a broken migration leaves no record.
func TestUp_failureRollsBack(t *testing.T) {
	db := openRaw(t)
	m := NewMigrator(db, fstest.MapFS{
		"V1__broken.up.sql": {Data: []byte(`CREATE TABLE;`)},
	})
	require.NoError(t, m.Initialize())

	assert.Error(t, m.Up())
	version, err := m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}

// TestDown verifies rollback of the latest migration.
func TestDown(t *testing.T) {
	db := openRaw(t)
	m := NewMigrator(db, Migrations())
	require.NoError(t, m.Initialize())

	err := m.Down()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no migrations to rollback")

	require.NoError(t, m.Up())
	require.NoError(t, m.Down())

	var tables int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name = 'techniques'").Scan(&tables))
	assert.Equal(t, 0, tables)

	version, err := m.CurrentVersion()
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}

func TestParseVersion(t *testing.T) {
	v, ok := parseVersion("V12__x.up.sql")
	assert.True(t, ok)
	assert.Equal(t, 12, v)

	_, ok = parseVersion("V0__x.up.sql")
	assert.False(t, ok)
	_, ok = parseVersion("initial.up.sql")
	assert.False(t, ok)
}
