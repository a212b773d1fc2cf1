package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"docforge/internal/metadata"
	"docforge/pkg/logger"
)

// DoctypeChannel is the NOTIFY channel carrying the name of a saved or
// deleted doctype.
const DoctypeChannel = "doctype_changed"

type doctypeRow struct {
	Name        string `db:"name"`
	Label       string `db:"label"`
	Description string `db:"description"`
}

type fieldRow struct {
	Doctype string          `db:"doctype"`
	Config  json.RawMessage `db:"config"`
}

// DoctypeStore keeps doctype definitions in sys_doctypes and
// sys_doctype_fields. It implements metadata.Lookup.
type DoctypeStore struct {
	txManager *TxManager
}

var _ metadata.Lookup = (*DoctypeStore)(nil)

// NewDoctypeStore creates a doctype store.
func NewDoctypeStore(txManager *TxManager) *DoctypeStore {
	return &DoctypeStore{txManager: txManager}
}

func (s *DoctypeStore) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Resolve loads one doctype. A missing row wraps metadata.ErrDoctypeNotFound.
func (s *DoctypeStore) Resolve(ctx context.Context, name string) (metadata.Doctype, error) {
	querier := s.txManager.GetQuerier(ctx)

	var row doctypeRow
	err := pgxscan.Get(ctx, querier, &row,
		`SELECT name, label, description FROM sys_doctypes WHERE name = $1`, name)
	if err != nil {
		if pgxscan.NotFound(err) {
			return metadata.Doctype{}, fmt.Errorf("%w: %s", metadata.ErrDoctypeNotFound, name)
		}
		return metadata.Doctype{}, fmt.Errorf("get doctype %s: %w", name, err)
	}

	var fields []fieldRow
	err = pgxscan.Select(ctx, querier, &fields,
		`SELECT doctype, config FROM sys_doctype_fields WHERE doctype = $1 ORDER BY idx`, name)
	if err != nil {
		return metadata.Doctype{}, fmt.Errorf("get fields of %s: %w", name, err)
	}
	return assemble(row, fields)
}

// List returns every stored doctype ordered by name.
func (s *DoctypeStore) List(ctx context.Context) ([]metadata.Doctype, error) {
	querier := s.txManager.GetQuerier(ctx)

	var rows []doctypeRow
	if err := pgxscan.Select(ctx, querier, &rows,
		`SELECT name, label, description FROM sys_doctypes ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list doctypes: %w", err)
	}
	var fields []fieldRow
	if err := pgxscan.Select(ctx, querier, &fields,
		`SELECT doctype, config FROM sys_doctype_fields ORDER BY doctype, idx`); err != nil {
		return nil, fmt.Errorf("list doctype fields: %w", err)
	}

	byDoctype := make(map[string][]fieldRow, len(rows))
	for _, f := range fields {
		byDoctype[f.Doctype] = append(byDoctype[f.Doctype], f)
	}
	out := make([]metadata.Doctype, 0, len(rows))
	for _, row := range rows {
		d, err := assemble(row, byDoctype[row.Name])
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Save validates and upserts d, replacing its field list, and notifies
// DoctypeChannel listeners when the transaction commits.
func (s *DoctypeStore) Save(ctx context.Context, d metadata.Doctype) error {
	if err := d.Validate(); err != nil {
		return err
	}

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		querier := s.txManager.GetQuerier(ctx)

		_, err := querier.Exec(ctx, `
			INSERT INTO sys_doctypes (name, label, description, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (name) DO UPDATE
			SET label = EXCLUDED.label, description = EXCLUDED.description, updated_at = now()
		`, d.Name, d.Label, d.Description)
		if err != nil {
			return fmt.Errorf("upsert doctype %s: %w", d.Name, err)
		}

		if _, err := querier.Exec(ctx, `DELETE FROM sys_doctype_fields WHERE doctype = $1`, d.Name); err != nil {
			return fmt.Errorf("clear fields of %s: %w", d.Name, err)
		}

		if len(d.Fields) > 0 {
			q := s.builder().Insert("sys_doctype_fields").Columns("doctype", "idx", "name", "type", "config")
			for i, f := range d.Fields {
				config, err := json.Marshal(f)
				if err != nil {
					return fmt.Errorf("marshal field %s.%s: %w", d.Name, f.Name, err)
				}
				q = q.Values(d.Name, i, f.Name, string(f.Type), config)
			}
			sql, args, err := q.ToSql()
			if err != nil {
				return fmt.Errorf("build insert: %w", err)
			}
			if _, err := querier.Exec(ctx, sql, args...); err != nil {
				return fmt.Errorf("insert fields of %s: %w", d.Name, err)
			}
		}

		if _, err := querier.Exec(ctx, `SELECT pg_notify($1, $2)`, DoctypeChannel, d.Name); err != nil {
			return fmt.Errorf("notify %s: %w", DoctypeChannel, err)
		}
		logger.Info(ctx, "doctype saved", "doctype", d.Name, "fields", len(d.Fields))
		return nil
	})
}

// Delete removes a doctype and its fields. It reports whether a row existed.
func (s *DoctypeStore) Delete(ctx context.Context, name string) (bool, error) {
	var deleted bool
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		querier := s.txManager.GetQuerier(ctx)
		tag, err := querier.Exec(ctx, `DELETE FROM sys_doctypes WHERE name = $1`, name)
		if err != nil {
			return fmt.Errorf("delete doctype %s: %w", name, err)
		}
		deleted = tag.RowsAffected() > 0
		if !deleted {
			return nil
		}
		_, err = querier.Exec(ctx, `SELECT pg_notify($1, $2)`, DoctypeChannel, name)
		return err
	})
	return deleted, err
}

func assemble(row doctypeRow, fields []fieldRow) (metadata.Doctype, error) {
	d := metadata.Doctype{
		Name:        row.Name,
		Label:       row.Label,
		Description: row.Description,
		Fields:      make([]metadata.FieldConfig, 0, len(fields)),
	}
	for _, f := range fields {
		var cfg metadata.FieldConfig
		if err := json.Unmarshal(f.Config, &cfg); err != nil {
			return metadata.Doctype{}, fmt.Errorf("decode field of %s: %w", row.Name, err)
		}
		d.Fields = append(d.Fields, cfg)
	}
	return d, nil
}
