// Package store persists projects, tables, table rows and saved
// transformations behind database/sql.
//
// Concrete backends live in subpackages (sqlite, postgres, mysql, mssql) and
// register themselves from init, the same way database/sql drivers do:
//
//	import _ "sand/internal/store/all"
//
//	st, err := store.Open(ctx, store.Config{Kind: "sqlite", DSN: "sand.db"})
//
// Everything above this package stays backend-agnostic; differences in SQL
// syntax are captured by a per-backend Dialect.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a write violates a uniqueness rule.
	ErrConflict = errors.New("store: already exists")
)

// Opener opens a database handle for a DSN. It should validate the DSN
// without necessarily connecting; Open pings afterwards.
type Opener func(ctx context.Context, dsn string) (*sql.DB, error)

// Backend bundles how to open a database with how to speak its SQL.
type Backend struct {
	Open    Opener
	Dialect Dialect

	// MaxConns caps the connection pool; zero means no cap.
	MaxConns int
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register makes a backend available under kind. It panics when kind is
// registered twice or the backend is incomplete.
func Register(kind string, b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b.Open == nil {
		panic("store: Register with nil Open for " + kind)
	}
	if _, dup := backends[kind]; dup {
		panic("store: Register called twice for " + kind)
	}
	backends[kind] = b
}

// Kinds lists registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(backends))
	for k := range backends {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Config selects and tunes a backend.
type Config struct {
	Kind string
	DSN  string

	// Pool settings; zero leaves the backend's choice in place.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is the repository over one database.
type Store struct {
	db   *sql.DB
	d    Dialect
	kind string
}

// Open looks up cfg.Kind, opens and pings the database.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	mu.RLock()
	b, ok := backends[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store: unknown kind %q (registered: %s)", cfg.Kind, strings.Join(Kinds(), ", "))
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("store: %s: DSN must not be empty", cfg.Kind)
	}

	db, err := b.Open(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: %s: open: %w", cfg.Kind, err)
	}
	maxOpen, idle := cfg.MaxOpenConns, cfg.MaxIdleConns
	if b.MaxConns > 0 {
		if maxOpen <= 0 || maxOpen > b.MaxConns {
			maxOpen = b.MaxConns
		}
		idle = min(idle, b.MaxConns)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if idle > 0 {
		db.SetMaxIdleConns(idle)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: %s: ping: %w", cfg.Kind, err)
	}

	return &Store{db: db, d: b.Dialect.withDefaults(), kind: cfg.Kind}, nil
}

// Kind returns the backend kind the store was opened with.
func (s *Store) Kind() string { return s.kind }

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Ping checks connectivity, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// mapErr converts driver errors into package sentinels.
func (s *Store) mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case s.d.IsConflict != nil && s.d.IsConflict(err):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
