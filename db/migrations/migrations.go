// Package migrations хранит схему буфера снимков для каждого драйвера.
package migrations

import "embed"

const (
	SQLiteDir   = "sqlite"
	PostgresDir = "postgres"
)

//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
