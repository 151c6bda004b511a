package migrations

import "embed"

// FS contains embedded SQLite migrations for the asset cache schema.
//
//go:embed *.sql
var FS embed.FS
