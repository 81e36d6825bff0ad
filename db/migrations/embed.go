// Package migrations embeds the goose SQL migrations shipped with the service.
package migrations

import "embed"

// FS contains the SQL migrations, one directory per goose dialect.
//
//go:embed sql
var FS embed.FS

// Dir returns the directory inside FS holding the migrations for a goose
// dialect. Unknown dialects fall back to postgres.
func Dir(dialect string) string {
	switch dialect {
	case "mysql":
		return "sql/mysql"
	case "sqlite3":
		return "sql/sqlite"
	default:
		return "sql/postgres"
	}
}
