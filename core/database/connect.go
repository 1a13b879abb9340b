package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/m3rciful/starterbot/core/logger"
)

// DriverName is the database/sql driver registered by lib/pq.
const DriverName = "postgres"

const retryInterval = 2 * time.Second

// Connect waits for PostgreSQL to accept connections, configures the pool,
// and verifies connectivity. cfg is expected to be normalized.
func Connect(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	start := time.Now()
	if err := WaitForPostgres(ctx, cfg.DSN(), cfg.ConnectTimeout); err != nil {
		logger.LogEvent(ctx, logger.DB, slog.LevelError, "db.connect",
			slog.String("status", "error"),
			slog.String("host", cfg.Host),
			slog.String("port", cfg.Port),
			slog.String("db", cfg.Name),
			slog.String("dsn", cfg.Redacted()),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	db, err := sqlx.Open(DriverName, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		logger.LogEvent(ctx, logger.DB, slog.LevelError, "db.ping",
			slog.String("status", "error"),
			slog.String("host", cfg.Host),
			slog.String("db", cfg.Name),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("db ping: %w", err)
	}

	logger.LogEvent(ctx, logger.DB, slog.LevelInfo, "db.connect",
		slog.String("status", "ok"),
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
		slog.Int("pool_open", cfg.MaxConnections),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return db, nil
}

// WaitForPostgres pings the database until it answers, timeout elapses,
// or ctx is cancelled.
func WaitForPostgres(ctx context.Context, dsn string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	attempts := 0
	for {
		attempts++
		err := ping(ctx, dsn)
		if err == nil {
			if attempts > 1 {
				logger.LogEvent(ctx, logger.DB, slog.LevelDebug, "db.wait",
					slog.String("status", "ok"),
					slog.Int("attempts", attempts),
				)
			}
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout reached waiting for database after %d attempts: %w", attempts, err)
		case <-time.After(retryInterval):
		}
	}
}

func ping(ctx context.Context, dsn string) error {
	db, err := sqlx.Open(DriverName, dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}
