package migrations

import "embed"

// FS contains embedded SQLite migrations for the tile revision store.
//
//go:embed *.sql
var FS embed.FS
