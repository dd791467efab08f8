package db

import "embed"

// Migrations holds the goose SQL migrations applied by `teamboard migrate`.
//
//go:embed migrations/*.sql
var Migrations embed.FS
