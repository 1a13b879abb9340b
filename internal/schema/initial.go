package schema

import (
	"context"

	"github.com/m3rciful/starterbot/core/migrate"
)

// InitialTablesVersion identifies the migration creating users and bot_stats.
const InitialTablesVersion = "20241201_000001"

// InitialTables creates the users and bot_stats tables together with their
// indexes and the updated_at trigger.
func InitialTables() migrate.Migration {
	return migrate.Func{
		ID:    InitialTablesVersion,
		Desc:  "Create initial tables: users, bot_stats",
		Check: initialTablesMissing,
		Up:    createInitialTables,
		Down:  dropInitialTables,
	}
}

// initialTablesMissing applies the migration unless both tables already exist.
func initialTablesMissing(ctx context.Context, conn migrate.Conn) (bool, error) {
	users, err := migrate.TableExists(ctx, conn, "public", "users")
	if err != nil {
		return false, err
	}
	stats, err := migrate.TableExists(ctx, conn, "public", "bot_stats")
	if err != nil {
		return false, err
	}
	return !(users && stats), nil
}

func createInitialTables(ctx context.Context, conn migrate.Conn) error {
	return migrate.ExecAll(ctx, conn,
		`CREATE TABLE IF NOT EXISTS users (
			id BIGINT PRIMARY KEY,
			username VARCHAR(255),
			first_name VARCHAR(255),
			last_name VARCHAR(255),
			is_active BOOLEAN DEFAULT TRUE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username)`,
		`CREATE INDEX IF NOT EXISTS idx_users_is_active ON users(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at)`,
		`CREATE OR REPLACE FUNCTION update_updated_at_column()
		RETURNS TRIGGER AS $$
		BEGIN
			NEW.updated_at = NOW();
			RETURN NEW;
		END;
		$$ LANGUAGE plpgsql`,
		`DROP TRIGGER IF EXISTS update_users_updated_at ON users`,
		`CREATE TRIGGER update_users_updated_at
			BEFORE UPDATE ON users
			FOR EACH ROW
			EXECUTE FUNCTION update_updated_at_column()`,
		`CREATE TABLE IF NOT EXISTS bot_stats (
			id SERIAL PRIMARY KEY,
			total_users INTEGER DEFAULT 0,
			active_users INTEGER DEFAULT 0,
			last_restart TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			status VARCHAR(50) DEFAULT 'active',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bot_stats_status ON bot_stats(status)`,
		`CREATE INDEX IF NOT EXISTS idx_bot_stats_created_at ON bot_stats(created_at)`,
	)
}

func dropInitialTables(ctx context.Context, conn migrate.Conn) error {
	return migrate.ExecAll(ctx, conn,
		`DROP TABLE IF EXISTS bot_stats CASCADE`,
		`DROP TABLE IF EXISTS users CASCADE`,
		`DROP FUNCTION IF EXISTS update_updated_at_column() CASCADE`,
	)
}
