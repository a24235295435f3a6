// Package migrations embeds the SQL migrations shipped with the binaries.
package migrations

import (
	"embed"
	"io/fs"
)

// Postgres holds postgres/NNNN_name.sql files, applied in version order.
//
//go:embed postgres/*.sql
var Postgres embed.FS

// PostgresFS returns the Postgres migrations rooted at their directory, the
// layout postgres.Migrate expects.
func PostgresFS() fs.FS {
	sub, err := fs.Sub(Postgres, "postgres")
	if err != nil {
		panic(err)
	}
	return sub
}
