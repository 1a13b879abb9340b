package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/starterbot/core/logger"
	"github.com/m3rciful/starterbot/core/migrate"
)

// NewRunner builds a migration runner over db using the timeouts and ledger
// table from cfg.
func NewRunner(db *sqlx.DB, cfg Config, registry *migrate.Registry) *migrate.Runner {
	return migrate.NewRunner(
		migrate.WrapDB(db),
		registry,
		migrate.NewRecordStore(cfg.MigrationsTable),
		migrate.Options{
			StatementTimeout: cfg.StatementTimeout,
			MigrationTimeout: cfg.MigrationTimeout,
			Logger:           logger.MIG,
		},
	)
}

// RunMigrations applies every pending migration in registry. Any failure is
// returned and the process is expected to stop.
func RunMigrations(ctx context.Context, db *sqlx.DB, cfg Config, registry *migrate.Registry) (migrate.Summary, error) {
	sum, err := NewRunner(db, cfg, registry).Run(ctx)
	if err != nil {
		return sum, fmt.Errorf("migrations failed at %q: %w", sum.Failed, err)
	}
	return sum, nil
}
