// Package migrations embeds SQL migration scripts for the SQLite journal.
package migrations

import "embed"

//go:embed events/*.sql
var EventsFS embed.FS
