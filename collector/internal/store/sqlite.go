package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/schemawatch/dbopen"
)

// SchemaVersion is written to PRAGMA user_version. A database carrying a
// newer version belongs to a newer binary and is refused.
const SchemaVersion = 1

// Schema creates the two tables of a collector database.
const Schema = `
-- One snapshot per operation, latest capture wins
CREATE TABLE IF NOT EXISTS operation_specs (
    operation_name      TEXT PRIMARY KEY,
    content_fingerprint TEXT NOT NULL,
    endpoint            TEXT NOT NULL DEFAULT '',
    variable_shape      TEXT NOT NULL,
    response_schema     TEXT NOT NULL,
    collected_at        INTEGER NOT NULL
);

-- Free-form bookkeeping (lastExport)
CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// ErrSchemaVersion is returned when the database was written by a newer
// schema version.
var ErrSchemaVersion = errors.New("store: database schema version conflict")

// SQLite is the Backend over a modernc.org/sqlite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating when needed) the database at path. The pool is
// capped at one connection so PRAGMA data_version only moves on writes made
// by other processes.
func OpenSQLite(path string, opts ...dbopen.Option) (*SQLite, error) {
	opts = append([]dbopen.Option{dbopen.WithMkdirAll(), dbopen.WithSingleConn()}, opts...)
	db, err := dbopen.Open(path, opts...)
	if err != nil {
		return nil, err
	}
	s, err := NewSQLite(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLite applies the schema to an already opened database.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return nil, fmt.Errorf("store: read user_version: %w", err)
	}
	if version > SchemaVersion {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrSchemaVersion, version, SchemaVersion)
	}
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	if version < SchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
			return nil, fmt.Errorf("store: set user_version: %w", err)
		}
	}
	return &SQLite{db: db}, nil
}

// SQLiteOpener returns an Opener that opens path on each (re)connection.
func SQLiteOpener(path string, opts ...dbopen.Option) Opener {
	return func(ctx context.Context) (Backend, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return OpenSQLite(path, opts...)
	}
}

// DB exposes the underlying handle.
func (s *SQLite) DB() *sql.DB { return s.db }

func (s *SQLite) Get(ctx context.Context, name string) (*Spec, error) {
	var fp, endpoint, shape, node string
	var at int64
	err := s.db.QueryRowContext(ctx,
		`SELECT content_fingerprint, endpoint, variable_shape, response_schema, collected_at
		FROM operation_specs WHERE operation_name = ?`, name).
		Scan(&fp, &endpoint, &shape, &node, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return decodeSpec(name, fp, endpoint, shape, node, at)
}

func (s *SQLite) Put(ctx context.Context, spec *Spec) error {
	shape, node, err := encodeSpec(spec)
	if err != nil {
		return err
	}
	at := spec.CollectedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO operation_specs (operation_name, content_fingerprint, endpoint,
		variable_shape, response_schema, collected_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(operation_name) DO UPDATE SET
			content_fingerprint = excluded.content_fingerprint,
			endpoint = excluded.endpoint,
			variable_shape = excluded.variable_shape,
			response_schema = excluded.response_schema,
			collected_at = excluded.collected_at`,
		spec.OperationName, spec.ContentFingerprint, spec.Endpoint,
		string(shape), string(node), at.UnixMilli(),
	)
	return classify(err)
}

func (s *SQLite) All(ctx context.Context) ([]*Spec, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT operation_name, content_fingerprint, endpoint, variable_shape,
		response_schema, collected_at
		FROM operation_specs ORDER BY operation_name`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var specs []*Spec
	for rows.Next() {
		var name, fp, endpoint, shape, node string
		var at int64
		if err := rows.Scan(&name, &fp, &endpoint, &shape, &node, &at); err != nil {
			return nil, classify(err)
		}
		spec, err := decodeSpec(name, fp, endpoint, shape, node, at)
		if err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, classify(rows.Err())
}

func (s *SQLite) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM operation_specs`)
	return classify(err)
}

func (s *SQLite) Fingerprints(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT operation_name, content_fingerprint FROM operation_specs`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	fps := make(map[string]string)
	for rows.Next() {
		var name, fp string
		if err := rows.Scan(&name, &fp); err != nil {
			return nil, classify(err)
		}
		fps[name] = fp
	}
	return fps, classify(rows.Err())
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM operation_specs`).Scan(&n)
	return n, classify(err)
}

func (s *SQLite) GetMeta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify(err)
	}
	return v, true, nil
}

func (s *SQLite) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return classify(err)
}

// DataVersion returns PRAGMA data_version. On a single connection it only
// changes when another connection commits.
func (s *SQLite) DataVersion(ctx context.Context) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, "PRAGMA data_version").Scan(&v)
	return v, classify(err)
}

func (s *SQLite) Close() error { return s.db.Close() }

// classify maps driver errors meaning "this handle is gone" onto ErrClosed.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%w: %v", ErrClosed, err)
	}
	return err
}
