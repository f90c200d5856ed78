package app

import (
	"context"

	"github.com/dmitrijs2005/carekeeper/internal/migration"
)

// MigrationCandidates lists owners with legacy double-prefixed trees.
func (a *App) MigrationCandidates(ctx context.Context) ([]string, error) {
	return a.migrator.UsersNeedingMigration(ctx)
}

// Migrate repairs one owner, or all of them when owner is empty.
func (a *App) Migrate(ctx context.Context, owner string) (migration.Report, error) {
	if owner == "" {
		return a.migrator.MigrateAll(ctx)
	}
	return a.migrator.MigrateOwner(ctx, owner)
}
