// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY modernc.org/sqlite?
// It is a pure Go translation of SQLite: no CGo, no C toolchain, trivial
// cross-compilation. The driver registers itself with database/sql under the
// name "sqlite".
//
// TWO POOLS:
// SQLite allows one writer at a time but, in WAL mode, any number of readers
// alongside it. We mirror that with two database/sql pools over the same file:
//
//   - writer: a single connection whose transactions start with BEGIN IMMEDIATE
//     (_txlock=immediate), so a write transaction takes the write lock up
//     front instead of failing half-way when it upgrades from a read.
//   - reader: a normal pool for View transactions.
//
// For ":memory:" every connection would get its own private database, so
// both roles share one single-connection pool instead.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/citypolls/internal/apperror"
	"github.com/sakif/citypolls/internal/repository"
)

// busyTimeoutMillis is how long a connection waits on a locked database
// before the driver reports SQLITE_BUSY.
const busyTimeoutMillis = 5000

// DB wraps the connection pools and implements repository.Store.
type DB struct {
	writer *sql.DB
	reader *sql.DB
}

var _ repository.Store = (*DB)(nil)

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/polls.db" → file-based database (persistent)
//   - ":memory:"      → in-memory database (tests; lost on close)
func New(dbPath string) (*DB, error) {
	if dbPath == ":memory:" {
		return newMemory()
	}

	writer, err := open(dsn(dbPath, true))
	if err != nil {
		return nil, err
	}
	writer.SetMaxOpenConns(1)

	reader, err := open(dsn(dbPath, false))
	if err != nil {
		writer.Close()
		return nil, err
	}

	db := &DB{writer: writer, reader: reader}
	if err := db.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

func newMemory() (*DB, error) {
	conn, err := open(":memory:")
	if err != nil {
		return nil, err
	}
	// One connection, otherwise each pooled connection sees an empty database.
	conn.SetMaxOpenConns(1)

	// Foreign keys are OFF by default in SQLite (for backwards compatibility).
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{writer: conn, reader: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return db, nil
}

// dsn builds a modernc DSN. _pragma parameters are applied by the driver on
// every new connection, unlike a one-off Exec.
func dsn(path string, writer bool) string {
	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMillis))
	q.Add("_pragma", "journal_mode(WAL)")
	if writer {
		q.Set("_txlock", "immediate")
	}
	return "file:" + path + "?" + q.Encode()
}

func open(dataSource string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dataSource)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	// sql.Open doesn't connect; Ping surfaces a bad path or permissions now.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}
	return conn, nil
}

// Close closes both pools.
func (db *DB) Close() error {
	err := db.writer.Close()
	if db.reader != db.writer {
		if rerr := db.reader.Close(); err == nil {
			err = rerr
		}
	}
	return err
}

// Ping checks that the database answers.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.reader.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// Update runs fn in a write transaction. The transaction commits only if fn
// returns nil; otherwise (or on panic) it rolls back and nothing is applied.
func (db *DB) Update(ctx context.Context, fn func(tx repository.Tx) error) error {
	return db.inTx(ctx, db.writer, "write", fn)
}

// View runs fn in a read transaction so every read sees one snapshot.
func (db *DB) View(ctx context.Context, fn func(tx repository.Tx) error) error {
	return db.inTx(ctx, db.reader, "read", fn)
}

func (db *DB) inTx(ctx context.Context, pool *sql.DB, kind string, fn func(tx repository.Tx) error) (err error) {
	sqlTx, err := pool.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Sprintf("%s transaction", kind), fmt.Errorf("sqlite: beginning %s transaction: %w", kind, err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&tx{q: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return classify(fmt.Sprintf("%s transaction", kind), err)
	}

	if err := sqlTx.Commit(); err != nil {
		return classify(fmt.Sprintf("%s transaction", kind), fmt.Errorf("sqlite: committing %s transaction: %w", kind, err))
	}
	return nil
}

// classify turns infrastructure failures that left the database untouched
// into apperror.Transient. Domain errors pass through unchanged.
func classify(op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	if isBusy(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperror.Transient(op, err)
	}
	return err
}

// isBusy reports SQLITE_BUSY / SQLITE_LOCKED, including extended codes.
func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	primary := se.Code() & 0xff
	return primary == sqlite3.SQLITE_BUSY || primary == sqlite3.SQLITE_LOCKED
}

// isUniqueViolation reports a UNIQUE or PRIMARY KEY constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// querier is the subset of *sql.Tx the repositories use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// tx implements repository.Tx over one *sql.Tx. The per-entity methods live
// in poll.go, vote.go, comment.go, tag.go and user.go.
type tx struct {
	q querier
}

var _ repository.Tx = (*tx)(nil)

// expectOne turns "no rows affected" into a NotFound for resource/id.
func expectOne(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}
