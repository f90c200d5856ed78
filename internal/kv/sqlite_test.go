package kv

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLite_SetAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k1", []byte(`{"a":1}`)))

	v, err := s.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, []byte(`{"a":1}`), v)
}

func TestSQLite_Get_Missing_ReturnsNilNil(t *testing.T) {
	s := openStore(t)

	v, err := s.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestSQLite_Set_Overwrites(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("old")))
	require.NoError(t, s.Set(ctx, "k", []byte("new")))

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("new"), v)
}

func TestSQLite_List_MatchesPrefixLiterally(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "carekeeper-meal-records-1", []byte("a")))
	require.NoError(t, s.Set(ctx, "carekeeper-meal-records-2", []byte("b")))
	require.NoError(t, s.Set(ctx, "carekeeper-poop-records-1", []byte("c")))
	// "_" must not act as a single-character wildcard
	require.NoError(t, s.Set(ctx, "userX1", []byte("d")))
	require.NoError(t, s.Set(ctx, "user_1", []byte("e")))

	m, err := s.List(ctx, "carekeeper-meal-records-")
	require.NoError(t, err)
	assert.Len(t, m, 2)
	assert.Equal(t, []byte("a"), m["carekeeper-meal-records-1"])
	assert.Equal(t, []byte("b"), m["carekeeper-meal-records-2"])

	m, err = s.List(ctx, "user_")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"user_1": []byte("e")}, m)
}

func TestSQLite_DeleteIsIdempotent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))

	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestSQLite_SetManyAndClear(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetMany(ctx, map[string][]byte{
		"a": []byte("1"),
		"b": []byte("2"),
	}))

	m, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, m, 2)

	require.NoError(t, s.Clear(ctx))
	m, err = s.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, m)
}

func TestSQLite_Set_NilValueStoredAsEmpty(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", nil))
	v, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported kv driver")
}

func TestOpen_MigrationError(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	boom := errors.New("boom")
	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		assert.Equal(t, "migrations/sqlite", dir)
		return boom
	}

	_, err := Open(context.Background(), "sqlite", ":memory:")
	require.ErrorIs(t, err, boom)
}

func TestLikePrefix_Escapes(t *testing.T) {
	assert.Equal(t, `user\_%`, likePrefix("user_"))
	assert.Equal(t, `50\%\\x%`, likePrefix(`50%\x`))
	assert.Equal(t, `%`, likePrefix(""))
}
