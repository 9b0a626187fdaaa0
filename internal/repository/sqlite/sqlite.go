// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo (calls C code from Go), which means you need a C compiler
// installed and cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code, so no C compiler is needed, works everywhere Go works.
//
// ONE SET OF QUERIES, TWO WAYS TO RUN THEM:
// Every query method lives on the unexported `queries` type, which only needs
// something that can Exec/Query. Both *sql.DB and *sql.Tx qualify. DB embeds a
// `queries` bound to the pool (autocommit), and InTx builds a second one bound
// to a transaction. The services never see the difference.
//
// CONCURRENT CLAIMS:
// Transactions are opened with BEGIN IMMEDIATE (the `_txlock=immediate` DSN
// option), so a transaction takes the write lock before its first read. Two
// claims on the same code therefore run one after the other, and the second
// sees the first one's result. busy_timeout makes the second one wait instead
// of failing with SQLITE_BUSY.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/tapcard/internal/repository"
)

// compile-time check that *DB implements repository.Store
var _ repository.Store = (*DB)(nil)

// querier is the subset of *sql.DB and *sql.Tx the queries need.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db querier
}

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	queries
	conn *sql.DB
}

// dsn builds the connection string. The _pragma options are applied by the
// driver to every pooled connection, which a one-off PRAGMA Exec would not do.
func dsn(dbPath string) string {
	params := []string{
		"_pragma=foreign_keys(1)",
		"_pragma=busy_timeout(5000)",
		"_txlock=immediate",
		"_time_format=sqlite",
	}
	if dbPath != ":memory:" {
		params = append(params, "_pragma=journal_mode(WAL)")
	}
	return "file:" + dbPath + "?" + strings.Join(params, "&")
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/tapcard.db"  → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate, empty database.
	// Pin the pool to one connection so all queries see the same data.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{queries: queries{db: conn}, conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping is used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// InTx runs fn inside a single transaction.
//
// The committed flag + deferred Rollback covers every early return and a
// panic inside fn: unless Commit succeeded, the transaction is rolled back.
func (db *DB) InTx(ctx context.Context, fn func(q repository.Queries) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	committed = true
	return nil
}

// migrate runs all database migrations.
//
// CREATE TABLE IF NOT EXISTS is safe to re-run; columns added after a table
// first shipped go through addColumnIfNotExists.
//
// profiles.resolve_code_id is deliberately NOT a foreign key. A code can be
// soft-deleted or removed out from under its profile, and the reconciliation
// sweep is what cleans that up. The UNIQUE index still guarantees one
// profile per code.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			email      TEXT NOT NULL UNIQUE,
			name       TEXT NOT NULL DEFAULT '',
			role       TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'user')),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS resolve_code_batches (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL,
			prefix     TEXT,
			count      INTEGER NOT NULL DEFAULT 0,
			created_by INTEGER NOT NULL REFERENCES users(id),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating resolve_code_batches table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS resolve_codes (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			code        TEXT NOT NULL UNIQUE,
			type        TEXT NOT NULL DEFAULT 'nfc',
			status      TEXT NOT NULL DEFAULT 'unassigned'
			            CHECK (status IN ('unassigned', 'assigned', 'available')),
			user_id     INTEGER REFERENCES users(id),
			assigned_at DATETIME,
			created_by  INTEGER NOT NULL REFERENCES users(id),
			batch_id    INTEGER REFERENCES resolve_code_batches(id) ON DELETE SET NULL,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			deleted_at  DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_resolve_codes_status ON resolve_codes(status);
		CREATE INDEX IF NOT EXISTS idx_resolve_codes_user_id ON resolve_codes(user_id);
		CREATE INDEX IF NOT EXISTS idx_resolve_codes_batch_id ON resolve_codes(batch_id);
	`)
	if err != nil {
		return fmt.Errorf("creating resolve_codes table: %w", err)
	}

	// Copy tracking came later than the codes table.
	if err := db.addColumnIfNotExists("resolve_codes", "copied_at", "DATETIME"); err != nil {
		return fmt.Errorf("adding copied_at to resolve_codes: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id         INTEGER NOT NULL REFERENCES users(id),
			resolve_code_id INTEGER NOT NULL,
			slug            TEXT NOT NULL UNIQUE,
			first_name      TEXT NOT NULL,
			last_name       TEXT NOT NULL DEFAULT '',
			bio             TEXT NOT NULL DEFAULT '',
			company         TEXT NOT NULL DEFAULT '',
			position        TEXT NOT NULL DEFAULT '',
			avatar_url      TEXT NOT NULL DEFAULT '',
			phone           TEXT NOT NULL DEFAULT '',
			email           TEXT NOT NULL DEFAULT '',
			location        TEXT NOT NULL DEFAULT '',
			website         TEXT NOT NULL DEFAULT '',
			linkedin        TEXT NOT NULL DEFAULT '',
			twitter         TEXT NOT NULL DEFAULT '',
			instagram       TEXT NOT NULL DEFAULT '',
			facebook        TEXT NOT NULL DEFAULT '',
			github          TEXT NOT NULL DEFAULT '',
			youtube         TEXT NOT NULL DEFAULT '',
			tiktok          TEXT NOT NULL DEFAULT '',
			whatsapp        TEXT NOT NULL DEFAULT '',
			custom_links    TEXT NOT NULL DEFAULT '[]',
			services        TEXT NOT NULL DEFAULT '[]',
			is_public       INTEGER NOT NULL DEFAULT 1,
			theme           TEXT NOT NULL DEFAULT 'default',
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_resolve_code_id ON profiles(resolve_code_id);
		CREATE INDEX IF NOT EXISTS idx_profiles_user_id ON profiles(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating profiles table: %w", err)
	}

	if err := db.addColumnIfNotExists("profiles", "banner_url", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding banner_url to profiles: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS profile_visits (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			profile_id  INTEGER NOT NULL REFERENCES profiles(id) ON DELETE CASCADE,
			ip_address  TEXT NOT NULL DEFAULT '',
			user_agent  TEXT NOT NULL DEFAULT '',
			referer     TEXT NOT NULL DEFAULT '',
			country     TEXT NOT NULL DEFAULT '',
			city        TEXT NOT NULL DEFAULT '',
			device_info TEXT NOT NULL DEFAULT '{}',
			visited_at  DATETIME NOT NULL,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_profile_visits_profile ON profile_visits(profile_id, visited_at);
	`)
	if err != nil {
		return fmt.Errorf("creating profile_visits table: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent: safe to run multiple times.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// isUniqueViolation reports whether err is SQLite rejecting a duplicate key.
func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
			se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// rowScanner lets one scan function serve both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
