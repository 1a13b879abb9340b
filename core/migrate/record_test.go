package migrate

import (
	"context"
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/starterbot/core/database/pgerr"
)

// execErrConn fails every statement with err.
type execErrConn struct {
	fakeConn
	err error
}

func (c *execErrConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	_, _ = c.fakeConn.ExecContext(ctx, query, args...)
	return nil, c.err
}

type execErrTx struct {
	execErrConn
}

func (*execErrTx) Commit() error { return nil }

func TestBootstrapRacingCreate(t *testing.T) {
	ctx := context.Background()

	for _, code := range []pq.ErrorCode{pgerr.UniqueViolation, pgerr.DuplicateTable} {
		t.Run(string(code), func(t *testing.T) {
			store := NewRecordStore("")
			auto := &execErrConn{err: &pq.Error{Code: code}}
			require.NoError(t, store.Bootstrap(ctx, auto), "autocommit handle sees the table created by the other process")
			require.NoError(t, store.Bootstrap(ctx, auto))
			assert.Len(t, auto.statements(), 1, "ledger is marked present")

			store = NewRecordStore("")
			tx := &execErrTx{execErrConn{err: &pq.Error{Code: code}}}
			err := store.Bootstrap(ctx, tx)
			require.Error(t, err, "the error has aborted the transaction")
			assert.Equal(t, string(code), pgerr.Code(err))

			conn := &fakeConn{}
			require.NoError(t, store.Bootstrap(ctx, conn))
			assert.Len(t, conn.statements(), 1, "failed transactional bootstrap is retried")
		})
	}
}

func TestBootstrapInTxDoesNotMarkReady(t *testing.T) {
	ctx := context.Background()
	store := NewRecordStore("")

	tx := &execErrTx{}
	require.NoError(t, store.Bootstrap(ctx, tx))
	require.NoError(t, store.Bootstrap(ctx, tx))
	assert.Len(t, tx.statements(), 2)
}
