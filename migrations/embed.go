// Package migrations embeds the SQL schema migrations for the local
// database. Migrations are applied with goose at store open time.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
