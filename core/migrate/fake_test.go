package migrate

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"

	"github.com/jmoiron/sqlx"
)

var errFakeQuery = errors.New("fake: queries are not supported")

// fakeConn records executed statements and refuses queries.
type fakeConn struct {
	mu    sync.Mutex
	execs []string
}

func (c *fakeConn) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.execs = append(c.execs, query)
	return driverResult(1), nil
}

func (c *fakeConn) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errFakeQuery
}

func (c *fakeConn) QueryxContext(context.Context, string, ...any) (*sqlx.Rows, error) {
	return nil, errFakeQuery
}

func (c *fakeConn) QueryRowxContext(context.Context, string, ...any) *sqlx.Row {
	return &sqlx.Row{}
}

func (c *fakeConn) DriverName() string         { return "fake" }
func (c *fakeConn) Rebind(query string) string { return query }
func (c *fakeConn) BindNamed(q string, _ any) (string, []any, error) {
	return q, nil, nil
}

func (c *fakeConn) statements() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.execs...)
}

type driverResult int64

func (r driverResult) LastInsertId() (int64, error) { return 0, nil }
func (r driverResult) RowsAffected() (int64, error) { return int64(r), nil }

// fakeDB hands out fakeTx values and counts them.
type fakeDB struct {
	fakeConn
	beginErr  error
	commitErr error
	started   int
	txs       []*fakeTx
}

func (d *fakeDB) StartTx(ctx context.Context) (Tx, error) {
	if d.beginErr != nil {
		return nil, d.beginErr
	}
	d.started++
	tx := &fakeTx{ctx: ctx, commitErr: d.commitErr}
	d.txs = append(d.txs, tx)
	return tx, nil
}

type ledgerOp struct {
	insert  bool
	version string
	desc    string
}

// fakeTx buffers ledger writes until Commit.
type fakeTx struct {
	fakeConn
	ctx        context.Context
	commitErr  error
	pending    []ledgerOp
	ledger     *fakeLedger
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit() error {
	if t.commitErr != nil {
		t.rolledBack = true
		return t.commitErr
	}
	if t.ledger != nil {
		t.ledger.apply(t.pending)
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback() error {
	if t.committed {
		return sql.ErrTxDone
	}
	t.rolledBack = true
	t.pending = nil
	return nil
}

// fakeLedger is an in-memory Ledger honouring transaction boundaries of fakeTx.
type fakeLedger struct {
	mu         sync.Mutex
	records    map[string]Record
	bootstraps int
	// raceOn makes another "process" record the version right before this
	// run tries to insert it.
	raceOn string
}

func newFakeLedger(versions ...string) *fakeLedger {
	l := &fakeLedger{records: make(map[string]Record)}
	for _, v := range versions {
		l.records[v] = Record{Version: v}
	}
	return l
}

func (l *fakeLedger) apply(ops []ledgerOp) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, op := range ops {
		if op.insert {
			l.records[op.version] = Record{Version: op.version, Description: op.desc}
			continue
		}
		delete(l.records, op.version)
	}
}

func (l *fakeLedger) has(version string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.records[version]
	return ok
}

func (l *fakeLedger) versions() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.records))
	for v := range l.records {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func (l *fakeLedger) Bootstrap(context.Context, Conn) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bootstraps++
	return nil
}

func (l *fakeLedger) IsApplied(_ context.Context, _ Conn, version string) (bool, error) {
	return l.has(version), nil
}

func (l *fakeLedger) Record(_ context.Context, conn Conn, version, description string) error {
	if version == l.raceOn {
		l.apply([]ledgerOp{{insert: true, version: version, desc: "other process"}})
	}
	if l.has(version) {
		return &DuplicateVersionError{Version: version, Err: errors.New("unique violation")}
	}
	op := ledgerOp{insert: true, version: version, desc: description}
	if tx, ok := conn.(*fakeTx); ok {
		tx.ledger = l
		tx.pending = append(tx.pending, op)
		return nil
	}
	l.apply([]ledgerOp{op})
	return nil
}

func (l *fakeLedger) ListApplied(context.Context, Conn) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, 0, len(l.records))
	for _, r := range l.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (l *fakeLedger) Delete(_ context.Context, conn Conn, version string) error {
	if !l.has(version) {
		return ErrRecordNotFound
	}
	op := ledgerOp{version: version}
	if tx, ok := conn.(*fakeTx); ok {
		tx.ledger = l
		tx.pending = append(tx.pending, op)
		return nil
	}
	l.apply([]ledgerOp{op})
	return nil
}

// journal collects migration callbacks in call order.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(call string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, call)
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

type stepOpts struct {
	skip     bool
	checkErr error
	upErr    error
	downErr  error
}

func step(j *journal, version string, o stepOpts) Func {
	return Func{
		ID:   version,
		Desc: "step " + version,
		Check: func(context.Context, Conn) (bool, error) {
			j.add("check:" + version)
			if o.checkErr != nil {
				return false, o.checkErr
			}
			return !o.skip, nil
		},
		Up: func(ctx context.Context, conn Conn) error {
			j.add("up:" + version)
			if o.upErr != nil {
				return o.upErr
			}
			_, err := conn.ExecContext(ctx, "-- up "+version)
			return err
		},
		Down: func(ctx context.Context, conn Conn) error {
			j.add("down:" + version)
			if o.downErr != nil {
				return o.downErr
			}
			_, err := conn.ExecContext(ctx, "-- down "+version)
			return err
		},
	}
}
