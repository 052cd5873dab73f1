package transform

import (
	"fmt"
	"iter"

	"sand/internal/store"
)

// RowContext is what user code sees for one row: the requested cells in
// datapath order and the full row. Row must not be modified.
type RowContext struct {
	Index  int
	Values []any
	Row    []any
}

// argument is the value handed to user code: the first requested cell, or
// every requested cell for concatenate.
func (rc RowContext) argument(kind Kind) any {
	if kind == KindConcatenate {
		return rc.Values
	}
	if len(rc.Values) == 0 {
		return nil
	}
	return rc.Values[0]
}

// ColumnNotFoundError names a datapath entry missing from the table header.
type ColumnNotFoundError struct {
	Column string
	Table  string
}

func (e *ColumnNotFoundError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("column %q not found", e.Column)
	}
	return fmt.Sprintf("column %q not found in table %q", e.Column, e.Table)
}

// BuildContexts resolves datapath against the table's columns and yields one
// RowContext per row in the order given, stopping after limit rows when limit
// is non-negative. Cells beyond a short row's end are nil.
func BuildContexts(t store.Table, rows []store.Row, datapath []string, limit int) (iter.Seq[RowContext], error) {
	pos := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		if _, dup := pos[c]; !dup {
			pos[c] = i
		}
	}
	idx := make([]int, len(datapath))
	for i, name := range datapath {
		p, ok := pos[name]
		if !ok {
			return nil, &ColumnNotFoundError{Column: name, Table: t.Name}
		}
		idx[i] = p
	}

	return func(yield func(RowContext) bool) {
		for n, r := range rows {
			if limit >= 0 && n >= limit {
				return
			}
			vals := make([]any, len(idx))
			for i, p := range idx {
				if p < len(r.Cells) {
					vals[i] = r.Cells[p]
				}
			}
			if !yield(RowContext{Index: r.Index, Values: vals, Row: r.Cells}) {
				return
			}
		}
	}, nil
}
