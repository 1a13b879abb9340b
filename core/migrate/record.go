package migrate

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/starterbot/core/database/pgerr"
)

// DefaultTable is the ledger table used when no other name is configured.
const DefaultTable = "schema_migrations"

// Record is one row of the migration ledger.
type Record struct {
	Version     string    `db:"version"`
	Description string    `db:"description"`
	AppliedAt   time.Time `db:"applied_at"`
}

// RecordStore persists applied migration versions. Every call runs on the
// connection passed by the caller, so a record insert shares the fate of the
// migration transaction it belongs to.
type RecordStore struct {
	table string
	ready atomic.Bool
}

// NewRecordStore returns a store backed by the given table; empty means DefaultTable.
func NewRecordStore(table string) *RecordStore {
	if table == "" {
		table = DefaultTable
	}
	return &RecordStore{table: table}
}

// Table returns the ledger table name.
func (s *RecordStore) Table() string {
	return s.table
}

// Bootstrap creates the ledger table if it is missing. On an autocommit
// handle a concurrent bootstrap by another process surfaces as a unique
// violation on the catalog and is ignored. Inside a transaction the same
// error has already aborted it, so it is returned.
func (s *RecordStore) Bootstrap(ctx context.Context, conn Conn) error {
	if s.ready.Load() {
		return nil
	}
	_, inTx := conn.(interface{ Commit() error })
	if err := s.create(ctx, conn, inTx); err != nil {
		return err
	}
	// A transaction may still roll the table back; only autocommit connections
	// mark the ledger as permanently present.
	if !inTx {
		s.ready.Store(true)
	}
	return nil
}

func (s *RecordStore) create(ctx context.Context, conn Conn, inTx bool) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		version     TEXT PRIMARY KEY,
		description TEXT NOT NULL DEFAULT '',
		applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`, pq.QuoteIdentifier(s.table))
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		if !inTx && (pgerr.IsUniqueViolation(err) || pgerr.Code(err) == pgerr.DuplicateTable) {
			return nil
		}
		return fmt.Errorf("migrate: create %s: %w", s.table, err)
	}
	return nil
}

// IsApplied reports whether version is present in the ledger.
func (s *RecordStore) IsApplied(ctx context.Context, conn Conn, version string) (bool, error) {
	if err := s.Bootstrap(ctx, conn); err != nil {
		return false, err
	}
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE version = $1)`, pq.QuoteIdentifier(s.table))
	if err := sqlx.GetContext(ctx, conn, &exists, query, version); err != nil {
		return false, fmt.Errorf("migrate: lookup %s: %w", version, err)
	}
	return exists, nil
}

// Record inserts version with the current timestamp. A version that is already
// present yields a *DuplicateVersionError.
func (s *RecordStore) Record(ctx context.Context, conn Conn, version, description string) error {
	if err := s.Bootstrap(ctx, conn); err != nil {
		return err
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (version, description, applied_at) VALUES ($1, $2, NOW())`,
		pq.QuoteIdentifier(s.table))
	if _, err := conn.ExecContext(ctx, stmt, version, description); err != nil {
		if pgerr.IsUniqueViolation(err) {
			return &DuplicateVersionError{Version: version, Err: err}
		}
		return fmt.Errorf("migrate: record %s: %w", version, err)
	}
	return nil
}

// ListApplied returns all ledger entries ordered by version.
func (s *RecordStore) ListApplied(ctx context.Context, conn Conn) ([]Record, error) {
	if err := s.Bootstrap(ctx, conn); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT version, description, applied_at FROM %s ORDER BY version`,
		pq.QuoteIdentifier(s.table))
	var records []Record
	if err := sqlx.SelectContext(ctx, conn, &records, query); err != nil {
		return nil, fmt.Errorf("migrate: list applied: %w", err)
	}
	return records, nil
}

// Delete removes version from the ledger. Used by rollback.
func (s *RecordStore) Delete(ctx context.Context, conn Conn, version string) error {
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE version = $1`, pq.QuoteIdentifier(s.table))
	res, err := conn.ExecContext(ctx, stmt, version)
	if err != nil {
		return fmt.Errorf("migrate: delete %s: %w", version, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("migrate: delete %s: %w", version, err)
	}
	if n == 0 {
		return fmt.Errorf("migrate: delete %s: %w", version, ErrRecordNotFound)
	}
	return nil
}
