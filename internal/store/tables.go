package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

const tableCols = "id, project_id, name, description, columns_json, row_count, fingerprint"

// CreateTable inserts the table and all of its rows in one transaction. Row
// i is stored with index i. Size is set from len(rows).
func (s *Store) CreateTable(ctx context.Context, t Table, rows [][]any) (Table, error) {
	cols, err := json.Marshal(t.Columns)
	if err != nil {
		return Table{}, fmt.Errorf("store: encode columns: %w", err)
	}
	t.Size = len(rows)

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		id, err := s.insert(ctx, tx, tablesTable,
			[]string{"project_id", "name", "description", "columns_json", "row_count", "fingerprint"},
			t.ProjectID, t.Name, t.Description, string(cols), t.Size, t.Fingerprint)
		if err != nil {
			return s.mapErr("store: create table", err)
		}
		t.ID = id
		return s.insertRows(ctx, tx, id, rows)
	})
	if err != nil {
		return Table{}, err
	}
	return t, nil
}

// insertRows uses one prepared statement for the whole batch.
func (s *Store) insertRows(ctx context.Context, tx *sql.Tx, tableID int64, rows [][]any) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, s.d.rebind(
		"INSERT INTO "+rowsTable+" (table_id, row_index, row_json) VALUES (?, ?, ?)"))
	if err != nil {
		return fmt.Errorf("store: prepare row insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range rows {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("store: encode row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, tableID, i, string(b)); err != nil {
			return s.mapErr(fmt.Sprintf("store: insert row %d", i), err)
		}
	}
	return nil
}

// GetTable returns the table with id.
func (s *Store) GetTable(ctx context.Context, id int64) (Table, error) {
	q := s.d.rebind("SELECT " + tableCols + " FROM " + tablesTable + " WHERE id = ?")
	t, err := scanTable(s.db.QueryRowContext(ctx, q, id))
	return t, s.mapErr("store: get table", err)
}

// TableByFingerprint returns a table in project whose content fingerprint
// matches fp.
func (s *Store) TableByFingerprint(ctx context.Context, projectID int64, fp string) (Table, error) {
	q := s.d.rebind("SELECT " + tableCols + " FROM " + tablesTable +
		" WHERE project_id = ? AND fingerprint = ? ORDER BY id" + s.d.Page(0, 1))
	t, err := scanTable(s.db.QueryRowContext(ctx, q, projectID, fp))
	return t, s.mapErr("store: table by fingerprint", err)
}

// ListTables returns the tables of a project ordered by id. projectID 0 lists
// every table.
func (s *Store) ListTables(ctx context.Context, projectID int64) ([]Table, error) {
	q := "SELECT " + tableCols + " FROM " + tablesTable
	var args []any
	if projectID != 0 {
		q += " WHERE project_id = ?"
		args = append(args, projectID)
	}
	rows, err := s.db.QueryContext(ctx, s.d.rebind(q+" ORDER BY id"), args...)
	if err != nil {
		return nil, s.mapErr("store: list tables", err)
	}
	defer rows.Close()

	var out []Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan table: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteTable removes a table with its rows and saved transformations.
func (s *Store) DeleteTable(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.deleteTableTx(ctx, tx, id)
	})
}

func (s *Store) deleteTableTx(ctx context.Context, tx *sql.Tx, id int64) error {
	for _, q := range []string{
		"DELETE FROM " + rowsTable + " WHERE table_id = ?",
		"DELETE FROM " + transformationsTable + " WHERE table_id = ?",
	} {
		if _, err := tx.ExecContext(ctx, s.d.rebind(q), id); err != nil {
			return s.mapErr("store: delete table children", err)
		}
	}
	res, err := tx.ExecContext(ctx, s.d.rebind("DELETE FROM "+tablesTable+" WHERE id = ?"), id)
	if err != nil {
		return s.mapErr("store: delete table", err)
	}
	return requireAffected(res, "store: delete table")
}

func (s *Store) tableIDs(ctx context.Context, q queryer, projectID int64) ([]int64, error) {
	rows, err := q.QueryContext(ctx, s.d.rebind("SELECT id FROM "+tablesTable+" WHERE project_id = ?"), projectID)
	if err != nil {
		return nil, s.mapErr("store: table ids", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan table id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Rows returns rows of a table ordered by index, starting at offset. A
// negative limit returns every remaining row.
func (s *Store) Rows(ctx context.Context, tableID int64, offset, limit int) ([]Row, error) {
	if limit == 0 {
		return nil, nil
	}
	q := s.d.rebind("SELECT row_index, row_json FROM " + rowsTable +
		" WHERE table_id = ? ORDER BY row_index" + s.d.Page(offset, limit))
	rows, err := s.db.QueryContext(ctx, q, tableID)
	if err != nil {
		return nil, s.mapErr("store: rows", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r := Row{TableID: tableID}
		var raw string
		if err := rows.Scan(&r.Index, &raw); err != nil {
			return nil, fmt.Errorf("store: scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &r.Cells); err != nil {
			return nil, fmt.Errorf("store: decode row %d: %w", r.Index, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanTable(sc scanner) (Table, error) {
	var (
		t    Table
		cols string
	)
	if err := sc.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Description, &cols, &t.Size, &t.Fingerprint); err != nil {
		return Table{}, err
	}
	if err := json.Unmarshal([]byte(cols), &t.Columns); err != nil {
		return Table{}, fmt.Errorf("decode columns of table %d: %w", t.ID, err)
	}
	return t, nil
}
