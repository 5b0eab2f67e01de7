// Package migrations embeds the Postgres schema applied by goose.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
