package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/starterbot/core/database/pgerr"
	"github.com/m3rciful/starterbot/core/logger"
)

// Tx is a single migration transaction.
type Tx interface {
	Conn
	Commit() error
	Rollback() error
}

// DB is the autocommit handle the runner opens transactions from.
type DB interface {
	Conn
	StartTx(ctx context.Context) (Tx, error)
}

// Ledger tracks applied versions. *RecordStore is the PostgreSQL implementation.
type Ledger interface {
	Bootstrap(ctx context.Context, conn Conn) error
	IsApplied(ctx context.Context, conn Conn, version string) (bool, error)
	Record(ctx context.Context, conn Conn, version, description string) error
	ListApplied(ctx context.Context, conn Conn) ([]Record, error)
	Delete(ctx context.Context, conn Conn, version string) error
}

type sqlxDB struct {
	*sqlx.DB
}

// WrapDB adapts a *sqlx.DB to the runner's DB interface.
func WrapDB(db *sqlx.DB) DB {
	return sqlxDB{DB: db}
}

func (d sqlxDB) StartTx(ctx context.Context) (Tx, error) {
	tx, err := d.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// Options tune a Runner. Zero values disable the corresponding limit.
type Options struct {
	// StatementTimeout is applied with SET LOCAL inside every migration transaction.
	StatementTimeout time.Duration
	// MigrationTimeout bounds the whole transaction of a single migration.
	MigrationTimeout time.Duration
	Logger           *slog.Logger
}

// Summary describes the outcome of one Run.
type Summary struct {
	RunID   string
	Applied []string
	Skipped []string
	// Concurrent lists versions recorded by another process while this run was
	// working on them.
	Concurrent []string
	// Current counts versions that were already recorded before the run.
	Current  int
	Failed   string
	Duration time.Duration
}

// Changed reports whether the run recorded anything.
func (s Summary) Changed() bool {
	return len(s.Applied) > 0 || len(s.Skipped) > 0
}

// Status is the combined registry and ledger view of one version.
type Status struct {
	Version     string
	Description string
	Registered  bool
	Applied     bool
	AppliedAt   time.Time
}

type outcome int

const (
	outcomeFailed outcome = iota
	outcomeCurrent
	outcomeSkipped
	outcomeApplied
	outcomeConcurrent
)

// Runner applies registered migrations in ascending version order.
type Runner struct {
	db       DB
	registry *Registry
	ledger   Ledger
	opts     Options
}

// NewRunner wires a runner. A nil ledger means a RecordStore on DefaultTable.
func NewRunner(db DB, registry *Registry, ledger Ledger, opts Options) *Runner {
	if ledger == nil {
		ledger = NewRecordStore("")
	}
	return &Runner{db: db, registry: registry, ledger: ledger, opts: opts}
}

func (r *Runner) log() *slog.Logger {
	if r.opts.Logger != nil {
		return r.opts.Logger
	}
	return logger.MIG
}

// Run applies every pending migration. Each migration gets its own
// transaction; the run stops at the first failure and leaves earlier
// migrations committed.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	sum := Summary{RunID: uuid.NewString()}
	ctx = logger.WithRunID(ctx, sum.RunID)

	if r.registry == nil {
		err := &ConfigurationError{Reason: "no registry"}
		sum.Duration = time.Since(start)
		r.logSummary(ctx, sum, err)
		return sum, err
	}

	migrations := r.registry.Sorted()
	logger.LogEvent(ctx, r.log(), slog.LevelDebug, "migrations.start",
		slog.Int("count", len(migrations)),
		slog.String("table", r.table()),
	)

	if err := r.ledger.Bootstrap(ctx, r.db); err != nil {
		err = fmt.Errorf("migrate: bootstrap ledger: %w", err)
		sum.Duration = time.Since(start)
		r.logSummary(ctx, sum, err)
		return sum, err
	}

	var runErr error
	for _, m := range migrations {
		res, err := r.apply(ctx, m)
		switch res {
		case outcomeApplied:
			sum.Applied = append(sum.Applied, m.Version())
		case outcomeSkipped:
			sum.Skipped = append(sum.Skipped, m.Version())
		case outcomeConcurrent:
			sum.Concurrent = append(sum.Concurrent, m.Version())
		case outcomeCurrent:
			sum.Current++
		}
		if err != nil {
			sum.Failed = m.Version()
			runErr = err
			break
		}
	}

	sum.Duration = time.Since(start)
	r.logSummary(ctx, sum, runErr)
	return sum, runErr
}

func (r *Runner) apply(ctx context.Context, m Migration) (outcome, error) {
	version := m.Version()
	start := time.Now()

	if r.opts.MigrationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.MigrationTimeout)
		defer cancel()
	}

	tx, err := r.db.StartTx(ctx)
	if err != nil {
		return r.fail(ctx, m, start, fmt.Errorf("migrate: begin %s: %w", version, err))
	}
	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()

	if err := r.limitStatements(ctx, tx); err != nil {
		return r.fail(ctx, m, start, fmt.Errorf("migrate: %s: %w", version, err))
	}

	applied, err := r.ledger.IsApplied(ctx, tx, version)
	if err != nil {
		return r.fail(ctx, m, start, err)
	}
	if applied {
		logger.LogEvent(ctx, r.log(), slog.LevelDebug, "migration.current",
			slog.String("version", version),
		)
		return outcomeCurrent, nil
	}

	canApply, err := m.CheckCanApply(ctx, tx)
	if err != nil {
		return r.fail(ctx, m, start, &ApplicabilityCheckError{Version: version, Err: err})
	}

	// The ledger row is written before the upgrade so that a second process
	// blocks on it and then observes the duplicate instead of racing the DDL.
	if err := r.ledger.Record(ctx, tx, version, m.Description()); err != nil {
		if IsDuplicateVersion(err) {
			return r.concurrent(ctx, m, err)
		}
		return r.fail(ctx, m, start, err)
	}

	res := outcomeSkipped
	if canApply {
		if err := m.Upgrade(ctx, tx); err != nil {
			return r.fail(ctx, m, start, &UpgradeError{Version: version, Err: err})
		}
		res = outcomeApplied
	}

	if err := tx.Commit(); err != nil {
		done = true
		if pgerr.IsUniqueViolation(err) {
			return r.concurrent(ctx, m, &DuplicateVersionError{Version: version, Err: err})
		}
		return r.fail(ctx, m, start, fmt.Errorf("migrate: commit %s: %w", version, err))
	}
	done = true

	event := "migration.skipped"
	if res == outcomeApplied {
		event = "migration.applied"
	}
	logger.LogEvent(ctx, r.log(), slog.LevelInfo, event,
		slog.String("version", version),
		slog.String("description", m.Description()),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return res, nil
}

func (r *Runner) limitStatements(ctx context.Context, tx Tx) error {
	if r.opts.StatementTimeout <= 0 {
		return nil
	}
	stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", r.opts.StatementTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("set statement_timeout: %w", err)
	}
	return nil
}

func (r *Runner) fail(ctx context.Context, m Migration, start time.Time, err error) (outcome, error) {
	logger.LogEvent(ctx, r.log(), slog.LevelError, "migration.failed",
		slog.String("version", m.Version()),
		slog.String("description", m.Description()),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
		slog.String("sqlstate", pgerr.Code(err)),
		slog.Bool("timeout", pgerr.IsTimeout(err)),
		slog.String("err", err.Error()),
	)
	return outcomeFailed, err
}

func (r *Runner) concurrent(ctx context.Context, m Migration, err error) (outcome, error) {
	logger.LogEvent(ctx, r.log(), slog.LevelWarn, "migration.concurrent",
		slog.String("version", m.Version()),
		slog.String("cause", err.Error()),
	)
	return outcomeConcurrent, nil
}

func (r *Runner) logSummary(ctx context.Context, sum Summary, err error) {
	level := slog.LevelInfo
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.Any("applied", sum.Applied),
		slog.Any("skipped", sum.Skipped),
		slog.Int("current", sum.Current),
		slog.Duration("duration", logger.RoundMS(sum.Duration)),
	}
	if len(sum.Concurrent) > 0 {
		attrs = append(attrs, slog.Any("concurrent", sum.Concurrent))
	}
	if err != nil {
		level = slog.LevelError
		attrs = append(attrs, slog.String("failed", sum.Failed), slog.String("err", err.Error()))
	}
	logger.LogEvent(ctx, r.log(), level, "migrations.summary", attrs...)
}

func (r *Runner) table() string {
	if s, ok := r.ledger.(*RecordStore); ok {
		return s.Table()
	}
	return ""
}

// Pending returns registered versions that have no ledger entry yet.
func (r *Runner) Pending(ctx context.Context) ([]string, error) {
	applied, err := r.appliedSet(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, v := range r.registry.Versions() {
		if _, ok := applied[v]; !ok {
			out = append(out, v)
		}
	}
	return out, nil
}

// Status lists every registered or recorded version in ascending order.
// Recorded versions that are no longer registered show up with Registered=false.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	applied, err := r.appliedSet(ctx)
	if err != nil {
		return nil, err
	}
	byVersion := make(map[string]*Status, r.registry.Len()+len(applied))
	for _, m := range r.registry.Sorted() {
		byVersion[m.Version()] = &Status{
			Version:     m.Version(),
			Description: m.Description(),
			Registered:  true,
		}
	}
	for v, rec := range applied {
		st, ok := byVersion[v]
		if !ok {
			st = &Status{Version: v, Description: rec.Description}
			byVersion[v] = st
		}
		st.Applied = true
		st.AppliedAt = rec.AppliedAt
	}

	out := make([]Status, 0, len(byVersion))
	for _, st := range byVersion {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (r *Runner) appliedSet(ctx context.Context) (map[string]Record, error) {
	if r.registry == nil {
		return nil, &ConfigurationError{Reason: "no registry"}
	}
	records, err := r.ledger.ListApplied(ctx, r.db)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Record, len(records))
	for _, rec := range records {
		out[rec.Version] = rec
	}
	return out, nil
}

// Rollback reverts the last steps applied migrations, newest first.
// steps below one reverts a single migration.
func (r *Runner) Rollback(ctx context.Context, steps int) ([]string, error) {
	if steps < 1 {
		steps = 1
	}
	records, err := r.appliedDesc(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNothingToRollback
	}
	if steps < len(records) {
		records = records[:steps]
	}
	return r.revert(ctx, records)
}

// RollbackTo reverts every applied migration newer than target, newest first.
// An empty target reverts everything.
func (r *Runner) RollbackTo(ctx context.Context, target string) ([]string, error) {
	if target != "" {
		if r.registry == nil {
			return nil, &ConfigurationError{Reason: "no registry"}
		}
		if _, ok := r.registry.Get(target); !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownVersion, target)
		}
	}
	records, err := r.appliedDesc(ctx)
	if err != nil {
		return nil, err
	}
	var newer []Record
	for _, rec := range records {
		if rec.Version > target {
			newer = append(newer, rec)
		}
	}
	if len(newer) == 0 {
		return nil, ErrNothingToRollback
	}
	return r.revert(ctx, newer)
}

func (r *Runner) appliedDesc(ctx context.Context) ([]Record, error) {
	applied, err := r.appliedSet(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(applied))
	for _, rec := range applied {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Version > records[j].Version })
	return records, nil
}

func (r *Runner) revert(ctx context.Context, records []Record) ([]string, error) {
	ctx = logger.WithRunID(ctx, uuid.NewString())

	// Refuse before touching anything if a target has no code to revert it.
	for _, rec := range records {
		if _, ok := r.registry.Get(rec.Version); !ok {
			return nil, &ConfigurationError{Version: rec.Version, Reason: "applied but not registered"}
		}
	}

	var reverted []string
	for _, rec := range records {
		m, _ := r.registry.Get(rec.Version)
		if err := r.downgrade(ctx, m); err != nil {
			return reverted, err
		}
		reverted = append(reverted, rec.Version)
	}
	return reverted, nil
}

func (r *Runner) downgrade(ctx context.Context, m Migration) error {
	version := m.Version()
	start := time.Now()

	if r.opts.MigrationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.MigrationTimeout)
		defer cancel()
	}

	tx, err := r.db.StartTx(ctx)
	if err != nil {
		return fmt.Errorf("migrate: begin %s: %w", version, err)
	}
	defer func() { _ = tx.Rollback() }()

	err = r.limitStatements(ctx, tx)
	if err == nil {
		if downErr := m.Downgrade(ctx, tx); downErr != nil {
			err = &DowngradeError{Version: version, Err: downErr}
		}
	}
	if err == nil {
		err = r.ledger.Delete(ctx, tx, version)
	}
	if err == nil {
		if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("migrate: commit %s: %w", version, commitErr)
		}
	}

	if err != nil {
		logger.LogEvent(ctx, r.log(), slog.LevelError, "migration.rollback",
			slog.String("status", "fail"),
			slog.String("version", version),
			slog.String("err", err.Error()),
		)
		return err
	}

	logger.LogEvent(ctx, r.log(), slog.LevelInfo, "migration.rollback",
		slog.String("status", "ok"),
		slog.String("version", version),
		slog.String("description", m.Description()),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}
