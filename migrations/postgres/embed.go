// Package migrations embeds SQL migration files.
package migrations

import "embed"

// FS contains the postgres schema patches, applied in lexical order.
//
//go:embed patches/*.sql
var FS embed.FS

// Dir is the directory within FS where patches live.
const Dir = "patches"

// PatchLevel is the schema patch level this build expects. Startup fails
// if the resident database reports a lower level after migration.
const PatchLevel = 1
