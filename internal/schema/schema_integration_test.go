//go:build integration

package schema

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/starterbot/core/database"
	"github.com/m3rciful/starterbot/core/database/dbtest"
	"github.com/m3rciful/starterbot/core/migrate"
)

func TestMigrationsOnFreshDatabase(t *testing.T) {
	db, cfg := dbtest.Connect(t)
	ctx := context.Background()
	reg, err := Registry()
	require.NoError(t, err)

	sum, err := database.RunMigrations(ctx, db, cfg, reg)
	require.NoError(t, err)
	assert.Equal(t, reg.Versions(), sum.Applied)

	for _, table := range []string{"users", "bot_stats", migrate.DefaultTable} {
		exists, err := migrate.TableExists(ctx, db, "public", table)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}

	_, err = db.ExecContext(ctx, `INSERT INTO users (id, username, language_code) VALUES (1, 'a', 'en')`)
	require.NoError(t, err)

	sum, err = database.RunMigrations(ctx, db, cfg, reg)
	require.NoError(t, err)
	assert.False(t, sum.Changed())
	assert.Equal(t, reg.Len(), sum.Current)
}

func TestMigrationsWithPreexistingTables(t *testing.T) {
	db, cfg := dbtest.Connect(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		CREATE TABLE users (id BIGINT PRIMARY KEY, username VARCHAR(255), first_name VARCHAR(255),
			last_name VARCHAR(255), is_active BOOLEAN DEFAULT TRUE,
			created_at TIMESTAMPTZ DEFAULT NOW(), updated_at TIMESTAMPTZ DEFAULT NOW());
		CREATE TABLE bot_stats (id SERIAL PRIMARY KEY, total_users INTEGER DEFAULT 0,
			active_users INTEGER DEFAULT 0, last_restart TIMESTAMPTZ DEFAULT NOW(),
			status VARCHAR(50) DEFAULT 'active', created_at TIMESTAMPTZ DEFAULT NOW());`)
	require.NoError(t, err)

	reg, err := Registry()
	require.NoError(t, err)

	sum, err := database.RunMigrations(ctx, db, cfg, reg)
	require.NoError(t, err)
	assert.Equal(t, []string{InitialTablesVersion}, sum.Skipped)
	assert.NotContains(t, sum.Applied, InitialTablesVersion)

	runner := database.NewRunner(db, cfg, reg)
	pending, err := runner.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMigrationsConvergeOnCurrentSchema(t *testing.T) {
	db, cfg := dbtest.Connect(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, `
		CREATE TABLE users (id BIGINT PRIMARY KEY, username VARCHAR(255), first_name VARCHAR(255),
			last_name VARCHAR(255), language_code VARCHAR(16), is_active BOOLEAN DEFAULT TRUE,
			created_at TIMESTAMPTZ DEFAULT NOW(), updated_at TIMESTAMPTZ DEFAULT NOW());
		CREATE TABLE bot_stats (id SERIAL PRIMARY KEY, total_users INTEGER DEFAULT 0,
			active_users INTEGER DEFAULT 0, last_restart TIMESTAMPTZ DEFAULT NOW(),
			status VARCHAR(50) DEFAULT 'active', created_at TIMESTAMPTZ DEFAULT NOW());`)
	require.NoError(t, err)

	reg, err := Registry()
	require.NoError(t, err)

	sum, err := database.RunMigrations(ctx, db, cfg, reg)
	require.NoError(t, err)
	assert.Equal(t, reg.Versions(), sum.Skipped)
	assert.Empty(t, sum.Applied)
}

func TestInitialTablesRollback(t *testing.T) {
	db, cfg := dbtest.Connect(t)
	ctx := context.Background()
	reg, err := Registry()
	require.NoError(t, err)

	_, err = database.RunMigrations(ctx, db, cfg, reg)
	require.NoError(t, err)

	reverted, err := database.NewRunner(db, cfg, reg).RollbackTo(ctx, "")
	require.NoError(t, err)
	assert.Len(t, reverted, reg.Len())

	exists, err := migrate.TableExists(ctx, db, "public", "users")
	require.NoError(t, err)
	assert.False(t, exists)
}
