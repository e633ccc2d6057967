// Package sqlite implements the repository interfaces on SQLite through the
// pure-Go modernc.org/sqlite driver.
//
// SCHEMA MANAGEMENT:
// The schema lives in migrations/*.sql, embedded into the binary and applied
// with goose on every New. goose records applied versions in
// goose_db_version, so reopening an existing file is a no-op.
//
// CONNECTIONS:
// The pool is capped at one connection. SQLite serialises writers anyway,
// PRAGMAs are per-connection, and ":memory:" databases exist only on the
// connection that created them.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"

	"github.com/sakif/records-collector/internal/repository"
)

//go:embed migrations/*.sql
var migrations embed.FS

var _ repository.Store = (*DB)(nil)

// DB is the SQLite-backed repository.Store.
//
// A DB returned by New owns the pool. Inside WithinTx the callback receives
// a DB whose queries run on the transaction instead.
type DB struct {
	conn *sql.DB
	q    DBTX
	inTx bool
}

// New opens (or creates) the database at dbPath and migrates it to the latest
// schema version.
//
// dbPath examples:
//   - "data/records.db" → file-based database
//   - ":memory:"        → in-memory database for tests
func New(ctx context.Context, dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	if err := migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return &DB{conn: conn, q: conn}, nil
}

func migrate(ctx context.Context, conn *sql.DB) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, conn, "migrations")
}

// Close closes the pool. Calling it on a transactional DB is a no-op.
func (db *DB) Close() error {
	if db.inTx {
		return nil
	}
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Users() repository.UserRepository {
	return userRepo{q: db.q}
}

func (db *DB) Records(ownerID string) repository.OwnedRecords {
	return ownedRecords{q: db.q, ownerID: ownerID}
}

// WithinTx runs fn in a transaction. Nested calls join the outer transaction.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if db.inTx {
		return fn(ctx, db)
	}
	return withTx(ctx, db.conn, nil, func(ctx context.Context, tx DBTX) error {
		return fn(ctx, &DB{conn: db.conn, q: tx, inTx: true})
	})
}

// sqliteCode returns the extended result code of a driver error, or 0.
func sqliteCode(err error) int {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}
