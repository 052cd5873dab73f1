// Package transform runs user-written cell transformations over stored
// tables.
//
// A run compiles the request's code once, resolves its datapath against the
// table header and feeds each row to the compiled function in index order.
// Row failures never fail the run; they are recorded in the row's result and
// counted against the request's tolerance.
package transform

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"sand/internal/metrics"
	"sand/internal/sandbox"
	"sand/internal/store"
)

// Source supplies tables and their rows. *store.Store implements it.
type Source interface {
	GetTable(ctx context.Context, id int64) (store.Table, error)
	Rows(ctx context.Context, tableID int64, offset, limit int) ([]store.Row, error)
}

// Engine executes transformation requests.
type Engine struct {
	src      Source
	compiler *sandbox.Compiler
	log      *slog.Logger
}

// NewEngine wires an Engine. A nil logger discards output.
func NewEngine(src Source, compiler *sandbox.Compiler, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Engine{src: src, compiler: compiler, log: log}
}

// Run executes req against tableID and returns per-row results ordered by
// row index.
//
// Request-level problems fail the whole run before any row executes:
// *ValidationError, *sandbox.CompilationError, *ColumnNotFoundError, or an
// error wrapping store.ErrNotFound for a missing table.
func (e *Engine) Run(ctx context.Context, tableID int64, req Request) (results []Result, err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
		}
		metrics.RecordTransform(req.Type.label(), status, time.Since(start))
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	fn, err := e.compiler.Compile(req.Code)
	if err != nil {
		return nil, err
	}

	table, err := e.src.GetTable(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("load table %d: %w", tableID, err)
	}
	rows, err := e.src.Rows(ctx, tableID, 0, req.limit())
	if err != nil {
		return nil, fmt.Errorf("load rows of table %d: %w", tableID, err)
	}
	contexts, err := BuildContexts(table, rows, req.Datapath, req.limit())
	if err != nil {
		return nil, err
	}

	results, err = Execute(ctx, req.Type, fn, contexts, req.Tolerance)

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	metrics.RecordRows(string(req.Type), "ok", int64(len(results)-failed))
	metrics.RecordRows(string(req.Type), "failed", int64(failed))

	e.log.LogAttrs(ctx, slog.LevelInfo, "transformation finished",
		slog.Int64("table_id", tableID),
		slog.String("type", string(req.Type)),
		slog.Int("rows", len(results)),
		slog.Int("failed", failed),
		slog.Bool("aborted", failed > req.Tolerance),
		slog.Duration("elapsed", time.Since(start)),
	)
	if err != nil {
		return results, fmt.Errorf("transformation interrupted: %w", err)
	}
	return results, nil
}

// Execute dispatches to the executor for kind.
func Execute(ctx context.Context, kind Kind, p Program, rows iter.Seq[RowContext], tolerance int) ([]Result, error) {
	switch kind {
	case KindMap:
		return Map(ctx, p, rows, tolerance)
	case KindFilter:
		return Filter(ctx, p, rows, tolerance)
	case KindSplit:
		return Split(ctx, p, rows, tolerance)
	case KindConcatenate:
		return Concatenate(ctx, p, rows, tolerance)
	}
	return nil, invalid("type", "unknown transformation type %q", kind)
}
