// Package store persists the bookkeeping entities in SQLite.
//
// One Store value owns the connection pool. Repository methods live on the
// Store itself and take a context; when that context was produced by Atomic,
// every statement joins the surrounding database transaction. Single-row
// lookups return (nil, nil) when nothing matches so callers can tell "absent"
// apart from a failed query.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"golang-bookkeeping-service/internal/models"
	"golang-bookkeeping-service/pkg/errors"
	"golang-bookkeeping-service/pkg/logger"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const timestampLayout = time.RFC3339

// dbtx is the subset of *sql.DB and *sql.Tx the repositories use.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type txKey struct{}

// Store is the SQLite-backed relational store
type Store struct {
	db     *sql.DB
	path   string
	logger logger.Logger
	now    func() time.Time
}

// Open migrates the database at path to the latest schema and opens a
// connection pool on it.
func Open(path string, log logger.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "database.path", path, nil)
	}

	if err := Migrate(path); err != nil {
		return nil, err
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, "open database", err)
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.StoreError(errors.CodeQueryFailed, "open database", err)
	}

	return &Store{
		db:     db,
		path:   path,
		logger: logger.OrGlobal(log, "store"),
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Second) },
	}, nil
}

// Migrate applies all pending up migrations embedded in the binary. It uses
// its own connection because the migrate driver closes the database it was
// given.
func Migrate(path string) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "load migrations", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite3://"+path+"?_foreign_keys=on")
	if err != nil {
		return errors.StoreError(errors.CodeQueryFailed, "prepare migrations", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.StoreError(errors.CodeWriteFailed, "apply migrations", err)
	}
	return nil
}

// Close closes the connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Atomic runs fn inside a database transaction. Store calls made with the
// context passed to fn join that transaction; fn must not use the outer
// context for store calls or it will wait on the single connection. Nested
// calls reuse the outer transaction.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreError(errors.CodeWriteFailed, "begin transaction", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.WithError(rbErr).Error("Rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.StoreError(errors.CodeWriteFailed, "commit transaction", err)
	}
	return nil
}

func (s *Store) conn(ctx context.Context) dbtx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

func (s *Store) timestamp() string {
	return s.now().Format(timestampLayout)
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseDate(operation, v string) (time.Time, error) {
	d, err := time.Parse(models.DateLayout, v)
	if err != nil {
		return time.Time{}, errors.StoreError(errors.CodeDecodeFailed, operation, err)
	}
	return d, nil
}

func parseTimestamp(operation, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(timestampLayout, v)
	if err != nil {
		return time.Time{}, errors.StoreError(errors.CodeDecodeFailed, operation, err)
	}
	return t, nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}
