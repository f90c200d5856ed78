package dbx

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (sqlmock.Sqlmock, Beginner) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return mock, db
}

func upsert(ctx context.Context, q Querier) error {
	_, err := q.ExecContext(ctx, "INSERT INTO kv (key, value) VALUES (?, ?)", "carekeeper-meal-records-1", []byte("{}"))
	return err
}

func TestInTx_Commits(t *testing.T) {
	mock, db := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO kv").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	err := InTx(ctx, db, func(q Querier) error { return upsert(ctx, q) })
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_RollsBackOnError(t *testing.T) {
	mock, db := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO kv").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	ctx := context.Background()
	err := InTx(ctx, db, func(q Querier) error { return upsert(ctx, q) })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_JoinsRollbackFailure(t *testing.T) {
	mock, db := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback().WillReturnError(errors.New("connection reset"))

	boom := errors.New("boom")
	err := InTx(context.Background(), db, func(Querier) error { return boom })
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "rollback: connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_RollsBackAndRepanics(t *testing.T) {
	mock, db := newMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.PanicsWithValue(t, "kaput", func() {
		_ = InTx(context.Background(), db, func(Querier) error { panic("kaput") })
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_BeginAndCommitErrors(t *testing.T) {
	mock, db := newMock(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	called := false
	err := InTx(context.Background(), db, func(Querier) error { called = true; return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin transaction")
	assert.False(t, called)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))
	err = InTx(context.Background(), db, func(Querier) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "commit: serialization failure")
	require.NoError(t, mock.ExpectationsWereMet())
}
