package store

import (
	"context"
	"database/sql"
	"fmt"
)

const projectCols = "id, name, description"

// CreateProject inserts p and returns it with its id. A duplicate name
// yields ErrConflict.
func (s *Store) CreateProject(ctx context.Context, p Project) (Project, error) {
	id, err := s.insert(ctx, s.db, projectsTable, []string{"name", "description"}, p.Name, p.Description)
	if err != nil {
		return Project{}, s.mapErr("store: create project", err)
	}
	p.ID = id
	return p, nil
}

// GetProject returns the project with id.
func (s *Store) GetProject(ctx context.Context, id int64) (Project, error) {
	q := s.d.rebind("SELECT " + projectCols + " FROM " + projectsTable + " WHERE id = ?")
	p, err := scanProject(s.db.QueryRowContext(ctx, q, id))
	return p, s.mapErr("store: get project", err)
}

// ProjectByName returns the project named name.
func (s *Store) ProjectByName(ctx context.Context, name string) (Project, error) {
	q := s.d.rebind("SELECT " + projectCols + " FROM " + projectsTable + " WHERE name = ?")
	p, err := scanProject(s.db.QueryRowContext(ctx, q, name))
	return p, s.mapErr("store: project by name", err)
}

// ListProjects returns all projects ordered by id.
func (s *Store) ListProjects(ctx context.Context) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+projectCols+" FROM "+projectsTable+" ORDER BY id")
	if err != nil {
		return nil, s.mapErr("store: list projects", err)
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan project: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProject overwrites name and description.
func (s *Store) UpdateProject(ctx context.Context, p Project) error {
	q := s.d.rebind("UPDATE " + projectsTable + " SET name = ?, description = ? WHERE id = ?")
	res, err := s.db.ExecContext(ctx, q, p.Name, p.Description, p.ID)
	if err != nil {
		return s.mapErr("store: update project", err)
	}
	return requireAffected(res, "store: update project")
}

// DeleteProject removes the project with its tables, rows and saved
// transformations.
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ids, err := s.tableIDs(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, tid := range ids {
			if err := s.deleteTableTx(ctx, tx, tid); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, s.d.rebind("DELETE FROM "+projectsTable+" WHERE id = ?"), id)
		if err != nil {
			return s.mapErr("store: delete project", err)
		}
		return requireAffected(res, "store: delete project")
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProject(sc scanner) (Project, error) {
	var p Project
	err := sc.Scan(&p.ID, &p.Name, &p.Description)
	return p, err
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}
