package migrations

import "embed"

// PostgresFS holds the relational mirror schema.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the action audit trail schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
