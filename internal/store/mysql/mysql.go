// Package mysql registers the "mysql" store backend (MySQL and MariaDB) using
// go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"sand/internal/store"

	"github.com/go-sql-driver/mysql"
)

// Kind is the registered backend name.
const Kind = "mysql"

// erDupEntry is ER_DUP_ENTRY.
const erDupEntry = 1062

func init() {
	store.Register(Kind, store.Backend{Open: open, Dialect: Dialect})
}

// Dialect is the SQL dialect used for MySQL.
var Dialect = store.Dialect{
	Types: map[string]string{
		"id":       "BIGINT AUTO_INCREMENT PRIMARY KEY",
		"bigint":   "BIGINT",
		"int":      "INT",
		"bool":     "BOOLEAN",
		"name":     "VARCHAR(255)",
		"text":     "TEXT",
		"longtext": "LONGTEXT",
	},
	IDs:        store.LastInsertID,
	Page:       store.LimitOffset("18446744073709551615"),
	IsConflict: isConflict,
}

// open takes a go-sql-driver DSN, e.g. "user:pass@tcp(localhost:3306)/sand".
// Affected-row counts are switched to matched rows so an update that changes
// nothing is not reported as missing.
func open(_ context.Context, dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: parse dsn: %w", err)
	}
	cfg.ClientFoundRows = true
	conn, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql: connector: %w", err)
	}
	return sql.OpenDB(conn), nil
}

func isConflict(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == erDupEntry
}
