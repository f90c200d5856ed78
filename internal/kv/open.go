package kv

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Store is a migrated Repository together with its connection pool.
type Store struct {
	*SQLRepository
	DB *sql.DB
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Open connects to the local cache, applies migrations and returns a Store.
// driver is "sqlite" (modernc) or "pgx".
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var (
		dialect string
		dir     string
		newRepo func(db *sql.DB) *SQLRepository
	)

	switch driver {
	case "sqlite":
		dialect, dir = "sqlite3", "migrations/sqlite"
		newRepo = func(db *sql.DB) *SQLRepository { return NewSQLiteRepository(db) }
	case "pgx", "postgres":
		driver, dialect, dir = "pgx", "postgres", "migrations/postgres"
		newRepo = func(db *sql.DB) *SQLRepository { return NewPostgresRepository(db) }
	default:
		return nil, fmt.Errorf("unsupported kv driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// one connection keeps ":memory:" databases coherent and serializes writers
		db.SetMaxOpenConns(1)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, dir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run kv migrations: %w", err)
	}

	return &Store{SQLRepository: newRepo(db), DB: db}, nil
}
