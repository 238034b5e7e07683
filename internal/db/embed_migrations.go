package db

import "embed"

// MigrationFS embeds SQL migration files from internal/db/migrations.
// They create a local replica of the external user schema for dev and
// integration use; the production store is owned by the source system.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
