// Package migrations embeds the hub's SQL migration files into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/quickbars-hub/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
