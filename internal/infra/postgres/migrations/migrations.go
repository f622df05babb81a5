package migrations

import (
	"embed"

	"github.com/uptrace/bun/migrate"
)

// Migrations holds the archive schema. Files are named {version}_{name}.up.sql / .down.sql.
var Migrations = migrate.NewMigrations()

//go:embed *.sql
var sqlMigrations embed.FS

func init() {
	if err := Migrations.Discover(sqlMigrations); err != nil {
		panic(err)
	}
}
