package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// IDStyle says how a backend hands back generated primary keys.
type IDStyle int

const (
	// LastInsertID uses sql.Result.LastInsertId (SQLite, MySQL).
	LastInsertID IDStyle = iota
	// Returning appends "RETURNING id" (PostgreSQL).
	Returning
	// OutputInserted uses "OUTPUT INSERTED.id" (SQL Server).
	OutputInserted
)

// Dialect captures the SQL differences between backends. Queries in this
// package are written with '?' placeholders and rebound per dialect.
type Dialect struct {
	// Placeholder renders the n-th (1-based) bind parameter. Nil means '?'.
	Placeholder func(n int) string

	// Types maps the schema's logical column types to native ones. Keys:
	// id, bigint, int, bool, name, text, longtext.
	Types map[string]string

	// CreateTable renders an idempotent CREATE TABLE. Nil means
	// CREATE TABLE IF NOT EXISTS.
	CreateTable func(name, body string) string

	IDs IDStyle

	// Page renders the paging clause placed after ORDER BY. limit < 0 means
	// no limit.
	Page func(offset, limit int) string

	// IsConflict reports unique-constraint violations.
	IsConflict func(error) bool
}

func (d Dialect) withDefaults() Dialect {
	if d.Placeholder == nil {
		d.Placeholder = func(int) string { return "?" }
	}
	if d.CreateTable == nil {
		d.CreateTable = func(name, body string) string {
			return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, body)
		}
	}
	if d.Page == nil {
		d.Page = LimitOffset("-1")
	}
	return d
}

// LimitOffset returns a Page func for "LIMIT n OFFSET m" dialects. unlimited
// is what the backend accepts as "no limit" in the LIMIT position.
func LimitOffset(unlimited string) func(offset, limit int) string {
	return func(offset, limit int) string {
		l := unlimited
		if limit >= 0 {
			l = strconv.Itoa(limit)
		}
		return fmt.Sprintf(" LIMIT %s OFFSET %d", l, max(offset, 0))
	}
}

// rebind rewrites '?' placeholders for the dialect.
func (d Dialect) rebind(q string) string {
	if d.Placeholder(1) == "?" {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// insert runs an INSERT and returns the generated id.
func (s *Store) insert(ctx context.Context, q queryer, table string, cols []string, args ...any) (int64, error) {
	ph := make([]string, len(cols))
	for i := range ph {
		ph[i] = "?"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s)", table, strings.Join(cols, ", "))
	if s.d.IDs == OutputInserted {
		b.WriteString(" OUTPUT INSERTED.id")
	}
	fmt.Fprintf(&b, " VALUES (%s)", strings.Join(ph, ", "))
	if s.d.IDs == Returning {
		b.WriteString(" RETURNING id")
	}
	query := s.d.rebind(b.String())

	if s.d.IDs == LastInsertID {
		res, err := q.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, err
		}
		return res.LastInsertId()
	}
	var id int64
	if err := q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}
