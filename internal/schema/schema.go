// Package schema declares the bot's database migrations.
package schema

import (
	"embed"

	"github.com/m3rciful/starterbot/core/migrate"
)

//go:embed sql/*.sql
var sqlFiles embed.FS

// Migrations returns every migration of the bot, Go-defined and SQL-file based.
func Migrations() ([]migrate.Migration, error) {
	fromFiles, err := migrate.LoadSQL(sqlFiles, "sql")
	if err != nil {
		return nil, err
	}
	ms := []migrate.Migration{
		InitialTables(),
	}
	return append(ms, fromFiles...), nil
}

// Registry builds the migration registry. Version clashes between Go and SQL
// migrations are reported here, before any database work.
func Registry() (*migrate.Registry, error) {
	ms, err := Migrations()
	if err != nil {
		return nil, err
	}
	return migrate.NewRegistry(ms...)
}
