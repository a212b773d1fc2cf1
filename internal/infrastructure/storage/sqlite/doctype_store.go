package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"docforge/internal/metadata"
	"docforge/pkg/logger"
)

// DoctypeStore keeps each doctype as one JSON definition row. It implements
// metadata.Lookup.
type DoctypeStore struct {
	txManager *TxManager
}

var _ metadata.Lookup = (*DoctypeStore)(nil)

// NewDoctypeStore creates a doctype store.
func NewDoctypeStore(txManager *TxManager) *DoctypeStore {
	return &DoctypeStore{txManager: txManager}
}

// Resolve loads one doctype. A missing row wraps metadata.ErrDoctypeNotFound.
func (s *DoctypeStore) Resolve(ctx context.Context, name string) (metadata.Doctype, error) {
	sqlStr, args, err := squirrel.Select("definition").
		From("sys_doctypes").
		Where(squirrel.Eq{"name": name}).
		ToSql()
	if err != nil {
		return metadata.Doctype{}, fmt.Errorf("build query: %w", err)
	}

	var definition string
	err = s.txManager.conn(ctx).QueryRowContext(ctx, sqlStr, args...).Scan(&definition)
	if errors.Is(err, sql.ErrNoRows) {
		return metadata.Doctype{}, fmt.Errorf("%w: %s", metadata.ErrDoctypeNotFound, name)
	}
	if err != nil {
		return metadata.Doctype{}, fmt.Errorf("get doctype %s: %w", name, err)
	}
	return decodeDefinition(definition)
}

// List returns every stored doctype ordered by name.
func (s *DoctypeStore) List(ctx context.Context) ([]metadata.Doctype, error) {
	rows, err := s.txManager.conn(ctx).QueryContext(ctx,
		`SELECT definition FROM sys_doctypes ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list doctypes: %w", err)
	}
	defer rows.Close()

	var out []metadata.Doctype
	for rows.Next() {
		var definition string
		if err := rows.Scan(&definition); err != nil {
			return nil, fmt.Errorf("scan doctype: %w", err)
		}
		d, err := decodeDefinition(definition)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Save validates and upserts d.
func (s *DoctypeStore) Save(ctx context.Context, d metadata.Doctype) error {
	if err := d.Validate(); err != nil {
		return err
	}
	definition, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal doctype %s: %w", d.Name, err)
	}

	sqlStr, args, err := squirrel.Insert("sys_doctypes").
		Columns("name", "definition", "updated_at").
		Values(d.Name, string(definition), time.Now().UTC().Format(time.RFC3339Nano)).
		Suffix("ON CONFLICT(name) DO UPDATE SET definition = excluded.definition, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := s.txManager.conn(ctx).ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("save doctype %s: %w", d.Name, err)
	}

	logger.Info(ctx, "doctype saved", "doctype", d.Name, "fields", len(d.Fields))
	return nil
}

// Delete removes a doctype. It reports whether a row existed.
func (s *DoctypeStore) Delete(ctx context.Context, name string) (bool, error) {
	res, err := s.txManager.conn(ctx).ExecContext(ctx, `DELETE FROM sys_doctypes WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete doctype %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func decodeDefinition(definition string) (metadata.Doctype, error) {
	var d metadata.Doctype
	if err := json.Unmarshal([]byte(definition), &d); err != nil {
		return metadata.Doctype{}, fmt.Errorf("decode doctype definition: %w", err)
	}
	return d, nil
}
