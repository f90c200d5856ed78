package kv

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresWithMock(t *testing.T) (*SQLRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock, db
}

func TestPostgres_Get_Found(t *testing.T) {
	repo, mock, _ := newPostgresWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT\s+value\s+FROM\s+kv\s+WHERE\s+key\s*=\s*\$1$`).
		WithArgs("k").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte("v")))

	v, err := repo.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Get_NoRows(t *testing.T) {
	repo, mock, _ := newPostgresWithMock(t)

	mock.ExpectQuery(`SELECT\s+value\s+FROM\s+kv`).
		WithArgs("k").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	v, err := repo.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestPostgres_Get_DBError(t *testing.T) {
	repo, mock, _ := newPostgresWithMock(t)

	mock.ExpectQuery(`SELECT\s+value\s+FROM\s+kv`).
		WithArgs("k").
		WillReturnError(errors.New("db down"))

	_, err := repo.Get(context.Background(), "k")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to get kv[k]")
}

func TestPostgres_Set_Upserts(t *testing.T) {
	repo, mock, _ := newPostgresWithMock(t)

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+kv.*ON\s+CONFLICT\s+\(key\)\s+DO\s+UPDATE`).
		WithArgs("k", []byte("v")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Set(context.Background(), "k", []byte("v")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SetMany_CommitsTransaction(t *testing.T) {
	repo, mock, _ := newPostgresWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT\s+INTO\s+kv`).
		WithArgs("k", []byte("v")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SetMany(context.Background(), map[string][]byte{"k": []byte("v")}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SetMany_RollsBackOnError(t *testing.T) {
	repo, mock, _ := newPostgresWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT\s+INTO\s+kv`).
		WithArgs("k", []byte("v")).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.SetMany(context.Background(), map[string][]byte{"k": []byte("v")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_List(t *testing.T) {
	repo, mock, _ := newPostgresWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT\s+key,\s*value\s+FROM\s+kv\s+WHERE\s+key\s+LIKE\s+\$1`).
		WithArgs(`user\_%`).
		WillReturnRows(sqlmock.NewRows([]string{"key", "value"}).
			AddRow("user_1", []byte("a")).
			AddRow("user_2", []byte("b")))

	m, err := repo.List(context.Background(), "user_")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"user_1": []byte("a"), "user_2": []byte("b")}, m)
}

func TestPostgres_DeleteAndClear(t *testing.T) {
	repo, mock, _ := newPostgresWithMock(t)

	mock.ExpectExec(`^DELETE\s+FROM\s+kv\s+WHERE\s+key\s*=\s*\$1$`).
		WithArgs("k").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`^DELETE\s+FROM\s+kv$`).
		WillReturnError(errors.New("locked"))

	require.NoError(t, repo.Delete(context.Background(), "k"))
	err := repo.Clear(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to clear kv")
	require.NoError(t, mock.ExpectationsWereMet())
}
