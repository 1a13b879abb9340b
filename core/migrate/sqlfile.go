package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
)

// SQL migration files follow the golang-migrate naming scheme with a 14-digit
// prefix, e.g. 20241215000001_users_language_code.up.sql. An optional
// <version>_<name>.check.sql holds a single-row boolean query deciding
// whether the up script still has work to do.
const (
	sqlVersionDigits = 14
	checkSuffix      = ".check.sql"
)

// FormatVersion renders a numeric file version as YYYYMMDD_NNNNNN.
func FormatVersion(v uint) (string, error) {
	s := strconv.FormatUint(uint64(v), 10)
	if len(s) != sqlVersionDigits {
		return "", fmt.Errorf("version %d: want %d digits", v, sqlVersionDigits)
	}
	return s[:8] + "_" + s[8:], nil
}

type sqlMigration struct {
	version     string
	description string
	up          string
	down        string
	check       string
}

func (m *sqlMigration) Version() string     { return m.version }
func (m *sqlMigration) Description() string { return m.description }

// CheckCanApply runs the check script. Without one the migration is always
// applicable.
func (m *sqlMigration) CheckCanApply(ctx context.Context, conn Conn) (bool, error) {
	if strings.TrimSpace(m.check) == "" {
		return true, nil
	}
	var apply bool
	if err := sqlx.GetContext(ctx, conn, &apply, m.check); err != nil {
		return false, fmt.Errorf("check script: %w", err)
	}
	return apply, nil
}

func (m *sqlMigration) Upgrade(ctx context.Context, conn Conn) error {
	if strings.TrimSpace(m.up) == "" {
		return nil
	}
	_, err := conn.ExecContext(ctx, m.up)
	return err
}

func (m *sqlMigration) Downgrade(ctx context.Context, conn Conn) error {
	if strings.TrimSpace(m.down) == "" {
		return fmt.Errorf("no down script for %s", m.version)
	}
	_, err := conn.ExecContext(ctx, m.down)
	return err
}

// LoadSQL reads *.up.sql / *.down.sql pairs and their optional *.check.sql
// from dir inside fsys and returns them as migrations in ascending order. An
// empty directory yields no migrations.
func LoadSQL(fsys fs.FS, dir string) ([]Migration, error) {
	drv, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("sql migrations in %q: %v", dir, err)}
	}
	defer drv.Close()

	var out []Migration
	v, err := drv.First()
	for err == nil {
		m, loadErr := loadSQLVersion(fsys, dir, drv, v)
		if loadErr != nil {
			return nil, loadErr
		}
		out = append(out, m)
		v, err = drv.Next(v)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("migrate: scan sql migrations: %w", err)
	}
	return out, nil
}

func loadSQLVersion(fsys fs.FS, dir string, drv source.Driver, v uint) (Migration, error) {
	version, err := FormatVersion(v)
	if err != nil {
		return nil, &ConfigurationError{Reason: err.Error()}
	}

	up, ident, err := readScript(drv.ReadUp(v))
	if err != nil {
		return nil, fmt.Errorf("migrate: read %s up: %w", version, err)
	}
	down, downIdent, err := readScript(drv.ReadDown(v))
	if err != nil {
		return nil, fmt.Errorf("migrate: read %s down: %w", version, err)
	}
	if ident == "" {
		ident = downIdent
	}

	check, err := fs.ReadFile(fsys, path.Join(dir, fmt.Sprintf("%d_%s%s", v, ident, checkSuffix)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("migrate: read %s check: %w", version, err)
	}

	return &sqlMigration{
		version:     version,
		description: strings.ReplaceAll(ident, "_", " "),
		up:          up,
		down:        down,
		check:       string(check),
	}, nil
}

// readScript drains a source reader. A missing file is reported as empty.
func readScript(rc io.ReadCloser, ident string, err error) (string, string, error) {
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", "", nil
		}
		return "", "", err
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return "", "", err
	}
	return string(body), ident, nil
}
