package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestNewDB_CreatesDirectory verifies that NewDB creates the parent directory if missing.
func TestNewDB_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	db, err := NewDB(dbPath)
	require.NoError(t, err, "NewDB should succeed even with nested non-existent directories")
	defer db.Close()

	info, err := os.Stat(filepath.Dir(dbPath))
	require.NoError(t, err)
	require.True(t, info.IsDir())

	if runtime.GOOS != "windows" {
		require.Equal(t, os.FileMode(0o700), info.Mode().Perm(), "Directory should have 0700 permissions")
	}
}

// TestNewDB_RunsMigrations verifies that every table exists after NewDB.
func TestNewDB_RunsMigrations(t *testing.T) {
	db := newTestDB(t)

	for _, table := range []string{"runs", "artifact_states", "leases", "schema_migrations"} {
		var name string
		err := db.conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "%s table should exist after migrations", table)
	}
}

// TestNewDB_PreMigrationBackup verifies that a .bak file is created when
// reopening an existing database.
func TestNewDB_PreMigrationBackup(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db1, err := NewDB(dbPath)
	require.NoError(t, err)
	_, err = os.Stat(dbPath + ".bak")
	require.True(t, os.IsNotExist(err), "a fresh database has nothing to back up")
	require.NoError(t, db1.Close())

	db2, err := NewDB(dbPath)
	require.NoError(t, err, "reopening must be idempotent")
	defer db2.Close()

	info, err := os.Stat(dbPath + ".bak")
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

// TestNewDB_Pragmas verifies WAL, foreign keys and busy timeout.
func TestNewDB_Pragmas(t *testing.T) {
	db := newTestDB(t)

	var journalMode string
	require.NoError(t, db.conn.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	require.Equal(t, "wal", journalMode)

	var foreignKeys int
	require.NoError(t, db.conn.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys))
	require.Equal(t, 1, foreignKeys)

	var busyTimeout int
	require.NoError(t, db.conn.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout))
	require.Equal(t, 5000, busyTimeout)
}

// TestDB_Close verifies that connection closes cleanly.
func TestDB_Close(t *testing.T) {
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	require.NoError(t, db.Close())
	require.Error(t, db.conn.Ping(), "Ping should fail after Close")
}

// TestDB_Connection verifies that Connection returns the underlying *sql.DB.
func TestDB_Connection(t *testing.T) {
	db := newTestDB(t)

	conn := db.Connection()
	require.IsType(t, (*sql.DB)(nil), conn)
	require.NoError(t, conn.Ping())
	require.NotNil(t, db.RunRepository())
	require.NotNil(t, db.ArtifactStateRepository())
	require.NotNil(t, db.LeaseRepository())
}
