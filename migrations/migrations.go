// Package migrations embeds the SQL schema and seed files so the migrate
// binary needs no working-directory assumptions.
package migrations

import "embed"

//go:embed sql seeds
var Files embed.FS
