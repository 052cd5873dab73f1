package store

import (
	"context"
	"fmt"
	"strings"
)

// Table names.
const (
	projectsTable        = "sand_projects"
	tablesTable          = "sand_tables"
	rowsTable            = "sand_rows"
	transformationsTable = "sand_transformations"
)

// schema lists table bodies with {type} tokens resolved through
// Dialect.Types. Child rows are removed by the repository rather than by
// foreign-key cascades, which SQL Server restricts.
var schema = []struct {
	name string
	body string
}{
	{projectsTable, `
		id {id},
		name {name} NOT NULL,
		description {text} NOT NULL,
		UNIQUE (name)`},
	{tablesTable, `
		id {id},
		project_id {bigint} NOT NULL,
		name {name} NOT NULL,
		description {text} NOT NULL,
		columns_json {longtext} NOT NULL,
		row_count {int} NOT NULL,
		fingerprint {name} NOT NULL,
		UNIQUE (project_id, name)`},
	{rowsTable, `
		table_id {bigint} NOT NULL,
		row_index {int} NOT NULL,
		row_json {longtext} NOT NULL,
		PRIMARY KEY (table_id, row_index)`},
	{transformationsTable, `
		id {id},
		table_id {bigint} NOT NULL,
		name {name} NOT NULL,
		mode {name} NOT NULL,
		type {name} NOT NULL,
		datapath_json {text} NOT NULL,
		outputpath_json {text} NOT NULL,
		code {longtext} NOT NULL,
		on_error {name} NOT NULL,
		is_draft {bool} NOT NULL,
		position {int} NOT NULL,
		insert_after {bigint} NULL`},
}

var typeTokens = []string{"id", "bigint", "int", "bool", "name", "text", "longtext"}

// Migrate creates any missing tables. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	pairs := make([]string, 0, 2*len(typeTokens))
	for _, tok := range typeTokens {
		native, ok := s.d.Types[tok]
		if !ok {
			return fmt.Errorf("store: %s dialect has no type for %q", s.kind, tok)
		}
		pairs = append(pairs, "{"+tok+"}", native)
	}
	r := strings.NewReplacer(pairs...)

	for _, t := range schema {
		stmt := s.d.CreateTable(t.name, r.Replace(t.body))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("store: create %s: %w", t.name, err)
		}
	}
	return nil
}
