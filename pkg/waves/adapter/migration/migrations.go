// Package migration applies the metadata schema with golang-migrate.
package migration

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed sql
var migrationFS embed.FS

// DefaultTable is the golang-migrate bookkeeping table.
const DefaultTable = "waves_schema_migrations"

// Source returns the embedded migrations for dbType.
func Source(dbType string) (fs.FS, string, error) {
	path := "sql/" + dbType
	if _, err := fs.Stat(migrationFS, path); err != nil {
		return nil, "", fmt.Errorf("no migrations for database type %s", dbType)
	}
	return migrationFS, path, nil
}
