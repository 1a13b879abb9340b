package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
env: Production
telegram:
  token: "123:abc"
  admin_id: 42
  use_local_api: true
logging:
  level: debug
database:
  host: db
  name: starter
  user: bot
  password: secret
  statement_timeout: 30s
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("POSTGRES_PORT", "6543")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, int64(42), cfg.Telegram.AdminID)
	assert.Equal(t, "http://localhost:8081", cfg.Telegram.LocalAPIURL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Same(t, &cfg.Config, cfg.CoreConfig())

	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, "6543", cfg.Database.Port)
	assert.Equal(t, "starter", cfg.Database.Name)
	assert.Equal(t, 30*time.Second, cfg.Database.StatementTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Database.MigrationTimeout)
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")

	_, err := Load(writeConfig(t, "database:\n  host: db\n"))
	assert.ErrorContains(t, err, "telegram token is required")
}

func TestLoadDatabaseSkipsTelegramValidation(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")

	cfg, err := LoadDatabase(writeConfig(t, "database:\n  host: db\n"))
	require.NoError(t, err)
	assert.Equal(t, "db", cfg.Database.Host)
	assert.Equal(t, "botdb", cfg.Database.Name)
}

func TestLoadDatabaseRejectsBadSSLMode(t *testing.T) {
	_, err := LoadDatabase(writeConfig(t, "database:\n  sslmode: sometimes\n"))
	assert.ErrorContains(t, err, "sslmode")
}
