package postgres

import (
	"context"
	"fmt"

	"docforge/pkg/logger"
)

// schemaDDL creates the system tables. Every statement is idempotent.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS sys_doctypes (
		name        TEXT PRIMARY KEY,
		label       TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS sys_doctype_fields (
		doctype TEXT NOT NULL REFERENCES sys_doctypes (name) ON DELETE CASCADE,
		idx     INT NOT NULL,
		name    TEXT NOT NULL,
		type    TEXT NOT NULL,
		config  JSONB NOT NULL,
		PRIMARY KEY (doctype, name)
	)`,
	`CREATE TABLE IF NOT EXISTS sys_documents (
		doctype    TEXT NOT NULL,
		id         TEXT NOT NULL,
		doc_status SMALLINT NOT NULL DEFAULT 0,
		owner      TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		data       JSONB NOT NULL,
		PRIMARY KEY (doctype, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sys_documents_created
		ON sys_documents (doctype, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS sys_audit (
		id                 UUID PRIMARY KEY,
		doctype            TEXT NOT NULL,
		document_id        TEXT NOT NULL,
		action             TEXT NOT NULL,
		user_id            TEXT NOT NULL DEFAULT '',
		changes            JSONB,
		changes_compressed BYTEA,
		compression_algo   TEXT NOT NULL DEFAULT 'none',
		created_at         TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sys_audit_document
		ON sys_audit (doctype, document_id, created_at DESC)`,
}

// Migrate creates the system tables when they are missing.
func Migrate(ctx context.Context, pool *Pool) error {
	for i, stmt := range schemaDDL {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate statement %d: %w", i, err)
		}
	}
	logger.Info(ctx, "postgres schema ready", "statements", len(schemaDDL))
	return nil
}
