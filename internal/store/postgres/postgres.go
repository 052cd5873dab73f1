// Package postgres registers the "postgres" store backend. Connections go
// through pgx's database/sql adapter so the repository code stays shared.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"sand/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
)

// Kind is the registered backend name.
const Kind = "postgres"

// uniqueViolation is SQLSTATE unique_violation.
const uniqueViolation = "23505"

func init() {
	store.Register(Kind, store.Backend{Open: open, Dialect: Dialect})
}

// Dialect is the SQL dialect used for PostgreSQL.
var Dialect = store.Dialect{
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	Types: map[string]string{
		"id":       "BIGSERIAL PRIMARY KEY",
		"bigint":   "BIGINT",
		"int":      "INTEGER",
		"bool":     "BOOLEAN",
		"name":     "VARCHAR(255)",
		"text":     "TEXT",
		"longtext": "TEXT",
	},
	IDs:        store.Returning,
	Page:       store.LimitOffset("ALL"),
	IsConflict: isConflict,
}

// open parses dsn (URL or key=value form) with pgx before handing it to
// database/sql, so malformed DSNs fail here rather than on first use.
func open(_ context.Context, dsn string) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	return stdlib.OpenDB(*cfg), nil
}

func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
