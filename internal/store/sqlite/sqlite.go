// Package sqlite registers the "sqlite" store backend on top of the pure-Go
// modernc.org/sqlite driver.
//
// SQLite allows a single writer, so the pool is limited to one connection.
// That also keeps ":memory:" databases alive for the lifetime of the handle.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sand/internal/store"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Kind is the registered backend name.
const Kind = "sqlite"

func init() {
	store.Register(Kind, store.Backend{Open: open, Dialect: Dialect, MaxConns: 1})
}

// Dialect is the SQL dialect used for SQLite.
var Dialect = store.Dialect{
	Types: map[string]string{
		"id":       "INTEGER PRIMARY KEY AUTOINCREMENT",
		"bigint":   "INTEGER",
		"int":      "INTEGER",
		"bool":     "BOOLEAN",
		"name":     "TEXT",
		"text":     "TEXT",
		"longtext": "TEXT",
	},
	IDs:        store.LastInsertID,
	Page:       store.LimitOffset("-1"),
	IsConflict: isConflict,
}

// open accepts a file path, a "file:" URI or ":memory:".
//
//	"sand.db"
//	"file:sand.db?_pragma=busy_timeout(5000)"
func open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil && !isMemory(dsn) {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
	}
	return db, nil
}

func isMemory(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory")
}

func isConflict(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
