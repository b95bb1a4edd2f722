// Package migrations holds the Postgres schema of the account and stored-quiz tables.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
