package transform

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"math"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// programFunc adapts a plain function to Program.
type programFunc func(ctx context.Context, value any, index int, row []any) (any, error)

func (f programFunc) Call(ctx context.Context, value any, index int, row []any) (any, error) {
	return f(ctx, value, index, row)
}

func seqOf(values ...any) iter.Seq[RowContext] {
	rcs := make([]RowContext, len(values))
	for i, v := range values {
		rcs[i] = RowContext{Index: i, Values: []any{v}, Row: []any{v}}
	}
	return slices.Values(rcs)
}

func failing(context.Context, any, int, []any) (any, error) {
	return nil, errors.New("boom")
}

func TestMap_AllSucceed(t *testing.T) {
	p := programFunc(func(_ context.Context, v any, _ int, _ []any) (any, error) {
		return v.(string) + "!", nil
	})
	got, err := Map(context.Background(), p, seqOf("a", "b"), 0)
	require.NoError(t, err)
	assert.Equal(t, []Result{
		{Path: 0, Value: "a", Ok: "a!"},
		{Path: 1, Value: "b", Ok: "b!"},
	}, got)
}

func TestTolerance(t *testing.T) {
	cases := []struct {
		name      string
		rows      int
		tolerance int
		want      int
	}{
		{"zero tolerance stops at first failure", 5, 0, 1},
		{"tolerance three records four failures", 5, 3, 4},
		{"budget larger than input never stops", 5, 100, 5},
		{"exact budget stops on last row", 3, 2, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			vals := make([]any, tc.rows)
			for i := range vals {
				vals[i] = "x"
			}
			got, err := Map(context.Background(), programFunc(failing), seqOf(vals...), tc.tolerance)
			require.NoError(t, err)
			require.Len(t, got, tc.want)
			for i, r := range got {
				assert.Equal(t, i, r.Path)
				assert.Equal(t, "boom", r.Error)
			}
		})
	}
}

func TestTolerance_OnlyFailuresCount(t *testing.T) {
	// Rows 1 and 3 fail; tolerance 1 absorbs the first and stops on the second.
	p := programFunc(func(_ context.Context, v any, i int, _ []any) (any, error) {
		if i%2 == 1 {
			return nil, errors.New("odd")
		}
		return v, nil
	})
	got, err := Map(context.Background(), p, seqOf("a", "b", "c", "d", "e"), 1)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.False(t, got[0].Failed())
	assert.True(t, got[1].Failed())
	assert.False(t, got[2].Failed())
	assert.True(t, got[3].Failed())
}

func TestFilter_RequiresBoolean(t *testing.T) {
	p := programFunc(func(_ context.Context, v any, _ int, _ []any) (any, error) {
		if v == "yes" {
			return true, nil
		}
		return "no", nil
	})
	got, err := Filter(context.Background(), p, seqOf("yes", "maybe"), 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, true, got[0].Ok)
	assert.Contains(t, got[1].Error, "filter must return a boolean, got string")
}

func TestSplit_RequiresArray(t *testing.T) {
	p := programFunc(func(_ context.Context, v any, _ int, _ []any) (any, error) {
		if v == "a b" {
			return []any{"a", "b"}, nil
		}
		return v, nil
	})
	got, err := Split(context.Background(), p, seqOf("a b", "c"), 5)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, got[0].Ok)
	assert.Contains(t, got[1].Error, "split must return an array, got string")
}

func TestConcatenate_ReceivesList(t *testing.T) {
	var seen []any
	p := programFunc(func(_ context.Context, v any, _ int, _ []any) (any, error) {
		seen = append(seen, v)
		return "joined", nil
	})
	rows := slices.Values([]RowContext{{Index: 7, Values: []any{"a", "b"}, Row: []any{"a", "b", "c"}}})
	got, err := Concatenate(context.Background(), p, rows, 0)
	require.NoError(t, err)
	assert.Equal(t, []any{[]any{"a", "b"}}, seen)
	assert.Equal(t, []Result{{Path: 7, Value: []any{"a", "b"}, Ok: "joined"}}, got)
}

func TestRun_NonSerializableResultFailsRow(t *testing.T) {
	p := programFunc(func(context.Context, any, int, []any) (any, error) {
		return math.NaN(), nil
	})
	got, err := Map(context.Background(), p, seqOf("x"), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Error, "not JSON-serializable")
}

func TestRun_CancellationStopsAndReturnsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := programFunc(func(_ context.Context, v any, i int, _ []any) (any, error) {
		if i == 1 {
			cancel()
		}
		return v, nil
	})
	got, err := Map(ctx, p, seqOf("a", "b", "c"), 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, got, 2)
}

func TestResult_MarshalJSON(t *testing.T) {
	ok, err := json.Marshal(Result{Path: 0, Value: "a", Ok: nil})
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":0,"value":"a","ok":null}`, string(ok))

	failed, err := json.Marshal(Result{Path: 2, Value: []any{"a"}, Error: "TypeError"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"path":2,"value":["a"],"error":"TypeError"}`, string(failed))
}

func TestExecute_UnknownKind(t *testing.T) {
	_, err := Execute(context.Background(), Kind("reduce"), programFunc(failing), seqOf(), 0)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}
