package database

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/extra/bundebug"
	_ "modernc.org/sqlite"
)

// DB wraps the sqlite handle. Queue, ledger, metrics, settings and rate-limit
// repositories use the raw handle; guest and CRM entities go through Bun.
type DB struct {
	*sql.DB
	Bun *bun.DB
}

// Open opens (creating if needed) the sqlite database at path.
func Open(path string, debug bool) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	q := url.Values{}
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Set("_time_format", "sqlite")
	dsn := "file:" + path + "?" + q.Encode()

	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// sqlite allows one writer; a single connection keeps transactions from
	// tripping over each other with SQLITE_BUSY.
	sqldb.SetMaxOpenConns(1)

	if err := sqldb.Ping(); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	bdb := bun.NewDB(sqldb, sqlitedialect.New())
	if debug {
		bdb.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	return &DB{DB: sqldb, Bun: bdb}, nil
}

// Close closes the underlying connection pool.
func (db *DB) Close() error {
	return db.Bun.Close()
}

// UTC normalises timestamps before they are written or compared. Stored
// times are second precision so text comparisons in sqlite stay ordered.
func UTC(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

// queryer is satisfied by both the pool and a transaction, so single-row
// writes can run standalone or as part of a larger unit.
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return UTC(*t)
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
