// Package db embeds the versioned schema migrations for each supported
// database dialect.
package db

import "embed"

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var Migrations embed.FS
