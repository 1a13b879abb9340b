package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/starterbot/core/config"
	coredatabase "github.com/m3rciful/starterbot/core/database"
	"github.com/m3rciful/starterbot/core/logger"
	"github.com/m3rciful/starterbot/core/migrate"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config
	Registry *migrate.Registry

	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(context.Context, *sqlx.DB, coredatabase.Config, *migrate.Registry) (migrate.Summary, error)
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB         *sqlx.DB
	Migrations migrate.Summary
}

// Run initializes the logger, connects to the database, and applies migrations.
// The connection is closed when migrations fail.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config provided")
	}
	if opts.Registry == nil {
		return nil, errors.New("bootstrap: nil migration registry")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(ctx, opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	run := opts.Migrate
	if run == nil {
		run = coredatabase.RunMigrations
	}
	sum, err := run(ctx, db, opts.Database, opts.Registry)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	logger.LogEvent(ctx, logger.L, slog.LevelInfo, "bootstrap.complete",
		slog.String("status", "ok"),
		slog.Int("migrations_applied", len(sum.Applied)),
		slog.Int("migrations_current", sum.Current),
	)
	return &Result{DB: db, Migrations: sum}, nil
}
