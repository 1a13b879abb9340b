package app

import (
	"fmt"

	coreconfig "github.com/m3rciful/starterbot/core/config"
	"github.com/m3rciful/starterbot/core/database"
)

// Config is the full bot configuration: the reusable core plus the database.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database database.Config `yaml:"database"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// Load reads the YAML file at path, overlays the environment and validates
// every section.
func Load(path string) (*Config, error) {
	cfg, err := LoadDatabase(path)
	if err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDatabase is Load for commands that only touch the database. The
// Telegram section is read but not validated.
func LoadDatabase(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.Decode(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Database.Normalize(); err != nil {
		return nil, fmt.Errorf("database config: %w", err)
	}
	return &cfg, nil
}
