//go:build integration

// Package dbtest starts throwaway PostgreSQL containers for integration tests.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/m3rciful/starterbot/core/database"
)

const (
	postgresImage = "postgres:16-alpine"
	testDB        = "starterbot_test"
	testUser      = "starterbot"
	testPassword  = "starterbot"
)

// Postgres starts a PostgreSQL container and returns its normalized config.
// The container is terminated when the test completes.
func Postgres(t *testing.T) database.Config {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       testDB,
			"POSTGRES_USER":     testUser,
			"POSTGRES_PASSWORD": testPassword,
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, container.Terminate(context.Background()))
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := database.Config{
		Host:     host,
		Port:     port.Port(),
		User:     testUser,
		Password: testPassword,
		Name:     testDB,
		SSLMode:  "disable",
	}
	require.NoError(t, cfg.Normalize())
	return cfg
}

// Connect starts a container and returns an open pool to it.
func Connect(t *testing.T) (*sqlx.DB, database.Config) {
	t.Helper()

	cfg := Postgres(t)
	db, err := database.Connect(context.Background(), cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, cfg
}
