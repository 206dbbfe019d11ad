// Package sqlstore is the database/sql implementation of the catalog store.
// Queries use ? placeholders and run unchanged on MySQL and SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"estimator/internal/config"
	"estimator/internal/storage"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

type Storage struct {
	db     *sql.DB
	driver string
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func New(cfg config.Storage) (*Storage, error) {
	const op = "storage.sqlstore.New"

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s, err := Open(db, cfg.Driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.Migrate {
		if err := s.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	return s, nil
}

// Open wraps an already opened handle.
func Open(db *sql.DB, driver string) (*Storage, error) {
	switch driver {
	case DriverMySQL:
	case DriverSQLite:
		// one connection keeps :memory: databases and transactions consistent
		db.SetMaxOpenConns(1)
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	return &Storage{db: db, driver: driver}, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn in one transaction; any error rolls everything back.
func (s *Storage) WithTx(ctx context.Context, fn func(tx storage.CatalogTx) error) error {
	const op = "storage.sqlstore.WithTx"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin transaction: %w", op, err)
	}

	defer tx.Rollback()

	if err := fn(&txStore{q: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

// txStore is the CatalogTx handed to WithTx callbacks.
type txStore struct {
	q querier
}

func (t *txStore) UpsertParameter(ctx context.Context, p storage.Parameter) (storage.Parameter, error) {
	return upsertParameter(ctx, t.q, p)
}

func (t *txStore) UpsertFormula(ctx context.Context, f storage.Formula) (storage.Formula, error) {
	return upsertFormula(ctx, t.q, f)
}

func (t *txStore) UpsertResource(ctx context.Context, r storage.Resource) (storage.Resource, error) {
	return upsertResource(ctx, t.q, r)
}

func (t *txStore) FindResourceByCode(ctx context.Context, code string, typ storage.ResourceType) (*storage.Resource, error) {
	return findResourceByCode(ctx, t.q, code, typ)
}

func (t *txStore) CreateTemplate(ctx context.Context, tpl *storage.Template) (int64, error) {
	return createTemplate(ctx, t.q, tpl)
}

func (s *Storage) UpsertParameter(ctx context.Context, p storage.Parameter) (storage.Parameter, error) {
	return upsertParameter(ctx, s.db, p)
}

func (s *Storage) UpsertFormula(ctx context.Context, f storage.Formula) (storage.Formula, error) {
	return upsertFormula(ctx, s.db, f)
}

func (s *Storage) UpsertResource(ctx context.Context, r storage.Resource) (storage.Resource, error) {
	return upsertResource(ctx, s.db, r)
}

func (s *Storage) FindResourceByCode(ctx context.Context, code string, typ storage.ResourceType) (*storage.Resource, error) {
	return findResourceByCode(ctx, s.db, code, typ)
}

func isUniqueViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		case sqlite3.SQLITE_CONSTRAINT:
			return strings.Contains(liteErr.Error(), "UNIQUE constraint failed")
		}
	}

	return false
}
