// Package store persists run history, published artifact state and run
// leases in SQLite.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/zjrosen/georefresh/internal/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps the SQLite connection and hands out repositories.
type DB struct {
	conn *sql.DB
}

// NewDB opens (creating if needed) the database at path and applies
// pending migrations. An existing file is copied to path+".bak" first.
func NewDB(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	existed := fileExists(path)
	if existed {
		if err := copyFile(path, path+".bak"); err != nil {
			return nil, fmt.Errorf("failed to back up database: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(wal)"
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := runMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	log.Debug(log.CatDB, "database ready", "path", path, "existed", existed)
	return &DB{conn: conn}, nil
}

func runMigrations(conn *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}
	drv, err := sqlite.WithInstance(conn, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	// m.Close would close conn as well; the caller owns it.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Connection returns the underlying *sql.DB.
func (db *DB) Connection() *sql.DB {
	return db.conn
}

// RunRepository returns the run history repository.
func (db *DB) RunRepository() RunRepository {
	return newRunRepository(db.conn)
}

// ArtifactStateRepository returns the published artifact state repository.
func (db *DB) ArtifactStateRepository() ArtifactStateRepository {
	return newArtifactStateRepository(db.conn)
}

// LeaseRepository returns the lease repository.
func (db *DB) LeaseRepository() LeaseRepository {
	return newLeaseRepository(db.conn)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
