// Package dbopen opens SQLite databases with production-safe pragmas and
// runs database calls under a bounded retry policy.
//
// Every connection gets foreign_keys=ON, journal_mode=WAL,
// synchronous=NORMAL and a busy_timeout (10s unless overridden):
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("schemawatch.db", dbopen.WithMkdirAll(), dbopen.WithSingleConn())
//
// Tests use an in-memory database closed on cleanup:
//
//	db := dbopen.OpenMemory(t)
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

const driverName = "sqlite"

type settings struct {
	busyMillis int
	mkdir      bool
	oneConn    bool
}

// Option adjusts how Open prepares the database.
type Option func(*settings)

// WithBusyTimeout overrides PRAGMA busy_timeout, in milliseconds.
func WithBusyTimeout(ms int) Option { return func(s *settings) { s.busyMillis = ms } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(s *settings) { s.mkdir = true } }

// WithSingleConn caps the pool at one connection. PRAGMA data_version then
// only moves when another process writes the file.
func WithSingleConn() Option { return func(s *settings) { s.oneConn = true } }

// Open opens the SQLite file at path. The caller blank-imports
// modernc.org/sqlite.
func Open(path string, opts ...Option) (*sql.DB, error) {
	s := settings{busyMillis: 10_000}
	for _, o := range opts {
		o(&s)
	}

	if s.mkdir && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}
	if s.oneConn {
		db.SetMaxOpenConns(1)
	}
	if err := prepare(db, s); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory opens a private in-memory database for t. Each ":memory:"
// connection is its own database, so the pool holds one connection.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", append(opts, WithSingleConn())...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func prepare(db *sql.DB, s settings) error {
	stmts := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", s.busyMillis),
		"PRAGMA synchronous = NORMAL",
	}
	for _, q := range stmts {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("dbopen: %s: %w", q, err)
		}
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("dbopen: ping: %w", err)
	}
	return nil
}
