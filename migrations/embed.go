package migrations

import "embed"

// FS holds the *.up.sql files applied by db.RunMigrations.
//
//go:embed *.sql
var FS embed.FS
