// Package sqlite provides an embedded SQLite backend for doctypes, documents
// and the transition trail, using the pure-Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"docforge/internal/core/tx"
	"docforge/pkg/logger"
)

var schemaDDL = []string{
	`PRAGMA foreign_keys=ON;`,
	`CREATE TABLE IF NOT EXISTS sys_doctypes (
		name       TEXT PRIMARY KEY,
		definition TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS sys_documents (
		doctype    TEXT NOT NULL,
		id         TEXT NOT NULL,
		doc_status INTEGER NOT NULL DEFAULT 0,
		data       TEXT NOT NULL,
		PRIMARY KEY (doctype, id)
	);`,
	`CREATE TABLE IF NOT EXISTS sys_transitions (
		doctype     TEXT NOT NULL,
		document_id TEXT NOT NULL,
		action      TEXT NOT NULL,
		from_status INTEGER NOT NULL,
		to_status   INTEGER NOT NULL,
		user_id     TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sys_transitions_document
		ON sys_transitions(doctype, document_id);`,
}

// Open opens (creating if needed) the database at dsn and applies the
// schema. ":memory:" gives a private in-memory database.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the system tables when they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schemaDDL {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	logger.Debug(ctx, "sqlite schema ready", "statements", len(schemaDDL))
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// TxManager runs functions in a database/sql transaction carried by the
// context. Nested calls reuse the outer transaction.
type TxManager struct {
	db *sql.DB
}

var _ tx.Manager = (*TxManager)(nil)

// NewTxManager creates a transaction manager for db.
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// RunInTransaction implements tx.Manager.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	sqlTx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(context.WithValue(ctx, txKey{}, sqlTx)); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			logger.Error(ctx, "rollback failed", "error", rbErr, "original_error", err)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// conn returns the transaction in ctx, or the database.
func (m *TxManager) conn(ctx context.Context) querier {
	if sqlTx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return sqlTx
	}
	return m.db
}
