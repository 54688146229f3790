// Package migrations embeds the SQL schema for the postgres queue backend.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
