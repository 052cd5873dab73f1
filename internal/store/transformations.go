package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const transformationCols = "id, table_id, name, mode, type, datapath_json, outputpath_json, code, on_error, is_draft, position, insert_after"

var transformationWriteCols = []string{
	"table_id", "name", "mode", "type", "datapath_json", "outputpath_json",
	"code", "on_error", "is_draft", "position", "insert_after",
}

func (t Transformation) args() ([]any, error) {
	dp, err := json.Marshal(nonNil(t.Datapath))
	if err != nil {
		return nil, err
	}
	op, err := json.Marshal(nonNil(t.Outputpath))
	if err != nil {
		return nil, err
	}
	var after sql.NullInt64
	if t.InsertAfter != nil {
		after = sql.NullInt64{Int64: *t.InsertAfter, Valid: true}
	}
	return []any{
		t.TableID, t.Name, t.Mode, t.Type, string(dp), string(op),
		t.Code, string(t.OnError), t.IsDraft, t.Order, after,
	}, nil
}

// CreateTransformation saves t and returns it with its id. The owning table
// must exist.
func (s *Store) CreateTransformation(ctx context.Context, t Transformation) (Transformation, error) {
	if _, err := s.GetTable(ctx, t.TableID); err != nil {
		return Transformation{}, err
	}
	args, err := t.args()
	if err != nil {
		return Transformation{}, fmt.Errorf("store: encode transformation: %w", err)
	}
	id, err := s.insert(ctx, s.db, transformationsTable, transformationWriteCols, args...)
	if err != nil {
		return Transformation{}, s.mapErr("store: create transformation", err)
	}
	t.ID = id
	return t, nil
}

// GetTransformation returns the saved transformation with id.
func (s *Store) GetTransformation(ctx context.Context, id int64) (Transformation, error) {
	q := s.d.rebind("SELECT " + transformationCols + " FROM " + transformationsTable + " WHERE id = ?")
	t, err := scanTransformation(s.db.QueryRowContext(ctx, q, id))
	return t, s.mapErr("store: get transformation", err)
}

// ListTransformations returns saved transformations ordered by position then
// id. tableID 0 lists all of them.
func (s *Store) ListTransformations(ctx context.Context, tableID int64) ([]Transformation, error) {
	q := "SELECT " + transformationCols + " FROM " + transformationsTable
	var args []any
	if tableID != 0 {
		q += " WHERE table_id = ?"
		args = append(args, tableID)
	}
	rows, err := s.db.QueryContext(ctx, s.d.rebind(q+" ORDER BY position, id"), args...)
	if err != nil {
		return nil, s.mapErr("store: list transformations", err)
	}
	defer rows.Close()

	var out []Transformation
	for rows.Next() {
		t, err := scanTransformation(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan transformation: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateTransformation overwrites every field of the saved transformation.
func (s *Store) UpdateTransformation(ctx context.Context, t Transformation) error {
	args, err := t.args()
	if err != nil {
		return fmt.Errorf("store: encode transformation: %w", err)
	}
	set := ""
	for i, c := range transformationWriteCols {
		if i > 0 {
			set += ", "
		}
		set += c + " = ?"
	}
	q := s.d.rebind("UPDATE " + transformationsTable + " SET " + set + " WHERE id = ?")
	res, err := s.db.ExecContext(ctx, q, append(args, t.ID)...)
	if err != nil {
		return s.mapErr("store: update transformation", err)
	}
	return requireAffected(res, "store: update transformation")
}

// DeleteTransformation removes a saved transformation.
func (s *Store) DeleteTransformation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.d.rebind("DELETE FROM "+transformationsTable+" WHERE id = ?"), id)
	if err != nil {
		return s.mapErr("store: delete transformation", err)
	}
	return requireAffected(res, "store: delete transformation")
}

func scanTransformation(sc scanner) (Transformation, error) {
	var (
		t       Transformation
		dp, op  string
		onError string
		after   sql.NullInt64
	)
	err := sc.Scan(&t.ID, &t.TableID, &t.Name, &t.Mode, &t.Type, &dp, &op,
		&t.Code, &onError, &t.IsDraft, &t.Order, &after)
	if err != nil {
		return Transformation{}, err
	}
	if err := json.Unmarshal([]byte(dp), &t.Datapath); err != nil {
		return Transformation{}, fmt.Errorf("decode datapath: %w", err)
	}
	if err := json.Unmarshal([]byte(op), &t.Outputpath); err != nil {
		return Transformation{}, fmt.Errorf("decode outputpath: %w", err)
	}
	t.OnError = OnError(onError)
	if after.Valid {
		v := after.Int64
		t.InsertAfter = &v
	}
	return t, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
