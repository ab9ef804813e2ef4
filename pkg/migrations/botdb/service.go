// Package botdb holds all the migrations for the bot database
package botdb

import (
	"github.com/uptrace/bun/migrate"
)

// Migrations is the collection of all migrations for the bot database
var Migrations = migrate.NewMigrations()
