package database

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Defaults applied by Normalize.
const (
	DefaultHost             = "localhost"
	DefaultPort             = "5432"
	DefaultName             = "botdb"
	DefaultUser             = "botuser"
	DefaultSSLMode          = "disable"
	DefaultMaxConnections   = 10
	DefaultConnectTimeout   = 30 * time.Second
	DefaultMigrationTimeout = 5 * time.Minute
)

// Config holds database connection settings shared across bots.
type Config struct {
	Host             string        `yaml:"host" envconfig:"POSTGRES_HOST"`
	Port             string        `yaml:"port" envconfig:"POSTGRES_PORT"`
	User             string        `yaml:"user" envconfig:"POSTGRES_USER"`
	Password         string        `yaml:"password" envconfig:"POSTGRES_PASSWORD"`
	Name             string        `yaml:"name" envconfig:"POSTGRES_DB"`
	SSLMode          string        `yaml:"sslmode" envconfig:"POSTGRES_SSLMODE"`
	MaxConnections   int           `yaml:"max_connections" envconfig:"POSTGRES_MAX_CONNECTIONS"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout" envconfig:"DB_CONNECT_TIMEOUT"`
	StatementTimeout time.Duration `yaml:"statement_timeout" envconfig:"DB_STATEMENT_TIMEOUT"`
	MigrationTimeout time.Duration `yaml:"migration_timeout" envconfig:"DB_MIGRATION_TIMEOUT"`
	MigrationsTable  string        `yaml:"migrations_table" envconfig:"DB_MIGRATIONS_TABLE"`
}

// Normalize fills defaults and validates the settings.
func (c *Config) Normalize() error {
	c.Host = strings.TrimSpace(c.Host)
	if c.Host == "" {
		c.Host = DefaultHost
	}
	c.Port = strings.TrimSpace(c.Port)
	if c.Port == "" {
		c.Port = DefaultPort
	}
	if strings.TrimSpace(c.Name) == "" {
		c.Name = DefaultName
	}
	if strings.TrimSpace(c.User) == "" {
		c.User = DefaultUser
	}
	c.SSLMode = strings.ToLower(strings.TrimSpace(c.SSLMode))
	if c.SSLMode == "" {
		c.SSLMode = DefaultSSLMode
	}
	switch c.SSLMode {
	case "disable", "allow", "prefer", "require", "verify-ca", "verify-full":
	default:
		return fmt.Errorf("invalid database.sslmode %q", c.SSLMode)
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = DefaultMaxConnections
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("database.max_connections must be positive")
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.StatementTimeout < 0 {
		return fmt.Errorf("database.statement_timeout must not be negative")
	}
	if c.MigrationTimeout == 0 {
		c.MigrationTimeout = DefaultMigrationTimeout
	}
	if c.MigrationTimeout < 0 {
		return fmt.Errorf("database.migration_timeout must not be negative")
	}
	c.MigrationsTable = strings.TrimSpace(c.MigrationsTable)
	return nil
}

// DSN renders the lib/pq key=value connection string.
func (c Config) DSN() string {
	parts := []string{
		"host=" + quoteDSN(c.Host),
		"port=" + quoteDSN(c.Port),
		"user=" + quoteDSN(c.User),
		"password=" + quoteDSN(c.Password),
		"dbname=" + quoteDSN(c.Name),
		"sslmode=" + quoteDSN(c.SSLMode),
	}
	if c.ConnectTimeout > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", int(c.ConnectTimeout.Seconds())))
	}
	return strings.Join(parts, " ")
}

// URL renders the connection settings as a postgres:// URL.
func (c Config) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Redacted returns URL with the password masked, for logs.
func (c Config) Redacted() string {
	u, err := url.Parse(c.URL())
	if err != nil {
		return ""
	}
	return u.Redacted()
}

func quoteDSN(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
