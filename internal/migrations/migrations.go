// Package migrations embeds the Postgres schema for the appointment ledger.
package migrations

import "embed"

// FS holds the numbered up/down migrations in golang-migrate file naming.
//
//go:embed *.sql
var FS embed.FS
