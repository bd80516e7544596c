// Package migrations embeds the client storage schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
