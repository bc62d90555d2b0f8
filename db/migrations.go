// Package db carries the SQL migrations so binaries can apply them without the source tree.
package db

import "embed"

// Migrations holds the postgres migration files under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// InitSQL returns the initial postgres schema.
func InitSQL() (string, error) {
	b, err := Migrations.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
