// Package db is the code store: sellers, QR codes, shipment requests, cycles
// and driver pickups. Postgres is reached through a pgx pool bridged into
// database/sql; SQLite (modernc) backs local runs and tests with the same
// queries.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

type Store struct {
	DB      *sql.DB
	dialect Dialect
	pool    *pgxpool.Pool
	queries *Queries
}

// Open picks the driver from the URL: "sqlite:<path>" (or "file:<path>")
// opens SQLite, anything else is treated as a Postgres connection string.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if path, ok := sqlitePath(databaseURL); ok {
		return OpenSQLite(ctx, path)
	}
	pool, err := NewPool(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return NewStore(pool), nil
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func NewStore(pool *pgxpool.Pool) *Store {
	sqlDB := stdlib.OpenDBFromPool(pool)
	return newStore(sqlDB, Postgres, pool)
}

func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows a single writer; one connection keeps transactions serialized.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return newStore(sqlDB, SQLite, nil), nil
}

func newStore(sqlDB *sql.DB, dialect Dialect, pool *pgxpool.Pool) *Store {
	return &Store{
		DB:      sqlDB,
		dialect: dialect,
		pool:    pool,
		queries: &Queries{db: sqlDB, dialect: dialect},
	}
}

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Queries() *Queries { return s.queries }

func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *Store) Close() error {
	err := s.DB.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

// WithTx runs fn inside a single transaction and commits when it returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(*Queries) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	queries := s.queries.WithTx(tx)
	if err := fn(queries); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func sqlitePath(databaseURL string) (string, bool) {
	switch {
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return strings.TrimPrefix(databaseURL, "sqlite://"), true
	case strings.HasPrefix(databaseURL, "sqlite:"):
		return strings.TrimPrefix(databaseURL, "sqlite:"), true
	case strings.HasPrefix(databaseURL, "file:"):
		return databaseURL, true
	}
	return "", false
}

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	// ErrStaleState means a guarded update matched no row because the row
	// was no longer in the expected state.
	ErrStaleState = errors.New("stale state")
)
