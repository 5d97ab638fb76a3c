// Package migrations embeds the user table schema for goose.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
