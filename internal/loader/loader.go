// Package loader imports CSV files into the store as tables.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"sand/internal/metrics"
	"sand/internal/store"
)

// Store is the subset of *store.Store the loader writes through.
type Store interface {
	CreateTable(ctx context.Context, t store.Table, rows [][]any) (store.Table, error)
	TableByFingerprint(ctx context.Context, projectID int64, fp string) (store.Table, error)
}

// Loader loads CSV files into a project.
type Loader struct {
	st  Store
	opt Options
	log *slog.Logger
}

// New returns a Loader writing to st. A nil logger discards output.
func New(st Store, opt Options, log *slog.Logger) *Loader {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Loader{st: st, opt: opt, log: log}
}

// Outcome reports what happened to one file.
type Outcome struct {
	Path  string
	Table store.Table
	// Skipped is set when an identical table already exists in the project;
	// Table is then the existing one.
	Skipped bool
}

// LoadFile parses path and stores it as a table named after the file stem.
func (l *Loader) LoadFile(ctx context.Context, projectID int64, path string) (Outcome, error) {
	start := time.Now()
	out := Outcome{Path: path}

	f, err := openSequential(path)
	if err != nil {
		metrics.RecordLoad("failed", 0)
		return out, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	p, err := Parse(f, l.opt)
	if err != nil {
		metrics.RecordLoad("failed", 0)
		return out, fmt.Errorf("parse %s: %w", path, err)
	}

	existing, err := l.st.TableByFingerprint(ctx, projectID, p.Fingerprint)
	switch {
	case err == nil:
		out.Table, out.Skipped = existing, true
		metrics.RecordLoad("skipped", 0)
		l.log.LogAttrs(ctx, slog.LevelInfo, "table unchanged, skipping",
			slog.String("path", path),
			slog.Int64("table", existing.ID),
			slog.String("fingerprint", p.Fingerprint))
		return out, nil
	case !errors.Is(err, store.ErrNotFound):
		metrics.RecordLoad("failed", 0)
		return out, err
	}

	base := filepath.Base(path)
	t, err := l.st.CreateTable(ctx, store.Table{
		ProjectID:   projectID,
		Name:        strings.TrimSuffix(base, filepath.Ext(base)),
		Description: "Loaded from " + base,
		Columns:     p.Columns,
		Fingerprint: p.Fingerprint,
	}, p.Rows)
	if err != nil {
		metrics.RecordLoad("failed", 0)
		return out, fmt.Errorf("store %s: %w", path, err)
	}
	out.Table = t
	metrics.RecordLoad("loaded", int64(t.Size))
	l.log.LogAttrs(ctx, slog.LevelInfo, "table loaded",
		slog.String("path", path),
		slog.Int64("table", t.ID),
		slog.String("name", t.Name),
		slog.Int("columns", len(t.Columns)),
		slog.Int("rows", t.Size),
		slog.Duration("elapsed", time.Since(start)))
	return out, nil
}

// LoadGlob loads every file matching pattern (doublestar syntax, so "**"
// crosses directories) in lexical order. It keeps going after a failed file
// and returns the joined errors.
func (l *Loader) LoadGlob(ctx context.Context, projectID int64, pattern string) ([]Outcome, error) {
	matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("glob %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("glob %q: no files matched", pattern)
	}
	slices.Sort(matches)

	var (
		outs []Outcome
		errs []error
	)
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return outs, err
		}
		o, err := l.LoadFile(ctx, projectID, m)
		if err != nil {
			l.log.LogAttrs(ctx, slog.LevelError, "load failed", slog.String("path", m), slog.Any("err", err))
			errs = append(errs, err)
			continue
		}
		outs = append(outs, o)
	}
	return outs, errors.Join(errs...)
}
