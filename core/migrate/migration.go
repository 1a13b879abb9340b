// Package migrate applies ordered, idempotent schema migrations and keeps a ledger
// of applied versions in the schema_migrations table.
package migrate

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Conn is the transactional connection handed to migrations and the record store.
// During a run it is always a *sqlx.Tx scoped to a single migration.
type Conn = sqlx.ExtContext

// Migration is one versioned schema change.
//
// CheckCanApply must not mutate state: false means the schema is already in the
// target state. Upgrade runs only after CheckCanApply returned true on the same
// transaction. Downgrade is used by explicit rollback only.
type Migration interface {
	Version() string
	Description() string
	CheckCanApply(ctx context.Context, conn Conn) (bool, error)
	Upgrade(ctx context.Context, conn Conn) error
	Downgrade(ctx context.Context, conn Conn) error
}

// Func adapts a set of closures to the Migration interface.
// A nil Check always applies; a nil Down makes Downgrade a no-op.
type Func struct {
	ID    string
	Desc  string
	Check func(ctx context.Context, conn Conn) (bool, error)
	Up    func(ctx context.Context, conn Conn) error
	Down  func(ctx context.Context, conn Conn) error
}

// Version returns the migration identifier.
func (f Func) Version() string { return f.ID }

// Description returns the human-readable summary.
func (f Func) Description() string { return f.Desc }

// CheckCanApply reports whether Upgrade still has work to do.
func (f Func) CheckCanApply(ctx context.Context, conn Conn) (bool, error) {
	if f.Check == nil {
		return true, nil
	}
	return f.Check(ctx, conn)
}

// Upgrade applies the change.
func (f Func) Upgrade(ctx context.Context, conn Conn) error {
	if f.Up == nil {
		return nil
	}
	return f.Up(ctx, conn)
}

// Downgrade reverses the change.
func (f Func) Downgrade(ctx context.Context, conn Conn) error {
	if f.Down == nil {
		return nil
	}
	return f.Down(ctx, conn)
}

// ExecAll runs statements in order on conn and stops at the first failure.
func ExecAll(ctx context.Context, conn Conn, statements ...string) error {
	for _, stmt := range statements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// TableExists reports whether a table is present in the given schema.
func TableExists(ctx context.Context, conn Conn, schema, table string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, conn, &exists,
		`SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = $1 AND table_name = $2
		)`, schema, table)
	if err != nil {
		return false, err
	}
	return exists, nil
}
