// Package migrations embeds the SQL schema for the conversation store.
package migrations

import "embed"

// FS holds every migration, applied in filename order.
//
//go:embed *.sql
var FS embed.FS
