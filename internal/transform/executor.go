package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
)

// Program is a compiled user function. *sandbox.Func implements it.
type Program interface {
	Call(ctx context.Context, value any, index int, row []any) (any, error)
}

// Result is the outcome for one row. Exactly one of Ok and Error is
// meaningful: Error is non-empty when the row failed.
type Result struct {
	Path  int
	Value any
	Ok    any
	Error string
}

// Failed reports whether the row failed.
func (r Result) Failed() bool { return r.Error != "" }

// MarshalJSON emits {path, value, ok} or {path, value, error}. ok is always
// present on success, even when null.
func (r Result) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			Path  int    `json:"path"`
			Value any    `json:"value"`
			Error string `json:"error"`
		}{r.Path, r.Value, r.Error})
	}
	return json.Marshal(struct {
		Path  int `json:"path"`
		Value any `json:"value"`
		Ok    any `json:"ok"`
	}{r.Path, r.Value, r.Ok})
}

// Map applies p to the first requested cell of each row. Any
// JSON-serializable result is accepted.
func Map(ctx context.Context, p Program, rows iter.Seq[RowContext], tolerance int) ([]Result, error) {
	return run(ctx, KindMap, p, rows, tolerance)
}

// Filter applies p to the first requested cell of each row; p must return a
// boolean.
func Filter(ctx context.Context, p Program, rows iter.Seq[RowContext], tolerance int) ([]Result, error) {
	return run(ctx, KindFilter, p, rows, tolerance)
}

// Split applies p to the first requested cell of each row; p must return an
// array.
func Split(ctx context.Context, p Program, rows iter.Seq[RowContext], tolerance int) ([]Result, error) {
	return run(ctx, KindSplit, p, rows, tolerance)
}

// Concatenate applies p to the list of requested cells of each row.
func Concatenate(ctx context.Context, p Program, rows iter.Seq[RowContext], tolerance int) ([]Result, error) {
	return run(ctx, KindConcatenate, p, rows, tolerance)
}

// run is the loop shared by every kind. Failures are recorded per row.
// tolerance failures are absorbed; the next one is recorded and ends the run,
// so at most tolerance+1 failed results are returned. Cancellation of ctx
// stops the loop and returns what was produced so far with ctx.Err().
func run(ctx context.Context, kind Kind, p Program, rows iter.Seq[RowContext], tolerance int) ([]Result, error) {
	var out []Result
	remaining := tolerance

	for rc := range rows {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		arg := rc.argument(kind)
		res := Result{Path: rc.Index, Value: arg}

		raw, err := p.Call(ctx, arg, rc.Index, rc.Row)
		if err != nil && ctx.Err() != nil {
			return out, ctx.Err()
		}
		if err == nil {
			err = checkShape(kind, raw)
		}
		if err == nil {
			err = checkSerializable(raw)
		}

		if err != nil {
			res.Error = errorText(err)
			out = append(out, res)
			if remaining == 0 {
				return out, nil
			}
			remaining--
			continue
		}
		res.Ok = raw
		out = append(out, res)
	}
	return out, nil
}

func checkShape(kind Kind, v any) error {
	switch kind {
	case KindFilter:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("filter must return a boolean, got %s", typeName(v))
		}
	case KindSplit:
		if _, ok := v.([]any); !ok {
			return fmt.Errorf("split must return an array, got %s", typeName(v))
		}
	}
	return nil
}

func checkSerializable(v any) error {
	if _, err := json.Marshal(v); err != nil {
		return fmt.Errorf("result is not JSON-serializable: %v", err)
	}
	return nil
}

func errorText(err error) string {
	if s := err.Error(); s != "" {
		return s
	}
	return "unknown error"
}

// typeName describes an exported JS value using JS vocabulary.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int64, float64, int:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
