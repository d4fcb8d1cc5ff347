package migrations

import "embed"

// FS contains embedded SQLite migrations for integrity storage.
//
//go:embed *.sql
var FS embed.FS
