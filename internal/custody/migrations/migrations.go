// Package migrations embeds the SQL schema for the custody store.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
