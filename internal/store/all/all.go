// Package all wires every built-in store backend into the store registry.
//
// It exists purely for side effects: a blank import runs each backend's
// init, which registers it with the store package. Binaries that only need
// one backend can import that subpackage instead.
//
//   - "sqlite"   (sand/internal/store/sqlite)
//   - "postgres" (sand/internal/store/postgres)
//   - "mysql"    (sand/internal/store/mysql)
//   - "mssql"    (sand/internal/store/mssql)
package all

import (
	_ "sand/internal/store/mssql"
	_ "sand/internal/store/mysql"
	_ "sand/internal/store/postgres"
	_ "sand/internal/store/sqlite"
)
