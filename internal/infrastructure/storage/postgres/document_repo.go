package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"docforge/internal/core/apperror"
	"docforge/internal/core/entity"
	"docforge/internal/domain"
	"docforge/internal/infrastructure/storage/query"
	"docforge/internal/metadata"
	"docforge/internal/schema"
)

const documentsTable = "sys_documents"

// columnFields are standard fields mirrored into real columns of sys_documents.
var columnFields = map[string]bool{
	metadata.FieldID:        true,
	metadata.FieldDocStatus: true,
	metadata.FieldOwner:     true,
	metadata.FieldCreatedAt: true,
	metadata.FieldUpdatedAt: true,
}

// Dialect reads fields from the JSONB data column; numeric storage is cast so
// range filters compare numbers rather than text.
type Dialect struct{}

// Expr implements query.Dialect.
func (Dialect) Expr(f *schema.Field) string {
	name := f.Name()
	if columnFields[name] && f.Standard {
		return name
	}
	switch f.Storage {
	case metadata.StorageInteger, metadata.StorageFloat:
		return fmt.Sprintf("(data->>'%s')::numeric", name)
	default:
		return fmt.Sprintf("data->>'%s'", name)
	}
}

type documentRow struct {
	Doctype   string        `db:"doctype"`
	DocStatus int16         `db:"doc_status"`
	Data      entity.Values `db:"data"`
}

// DocumentRepo stores documents of every doctype in one JSONB table.
type DocumentRepo struct {
	txManager *TxManager
}

var _ domain.DocumentRepository = (*DocumentRepo)(nil)

// NewDocumentRepo creates a document repository.
func NewDocumentRepo(txManager *TxManager) *DocumentRepo {
	return &DocumentRepo{txManager: txManager}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *DocumentRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Create inserts doc. A duplicate id within the doctype is a CONFLICT.
func (r *DocumentRepo) Create(ctx context.Context, doc *entity.Document) error {
	q := r.Builder().
		Insert(documentsTable).
		SetMap(map[string]any{
			"doctype":    doc.Doctype,
			"id":         doc.ID(),
			"doc_status": int16(doc.Status()),
			"owner":      nullString(doc.Values.GetString(metadata.FieldOwner)),
			"created_at": timestamp(doc.Values, metadata.FieldCreatedAt),
			"updated_at": timestamp(doc.Values, metadata.FieldUpdatedAt),
			"data":       doc.Values,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperror.NewConflict("document already exists").
				WithDetail("doctype", doc.Doctype).
				WithDetail("id", doc.ID()).
				WithCause(err)
		}
		return fmt.Errorf("insert %s: %w", documentsTable, err)
	}
	return nil
}

// Get returns a document or NOT_FOUND.
func (r *DocumentRepo) Get(ctx context.Context, doctype, id string) (*entity.Document, error) {
	q := r.Builder().
		Select("doctype", "doc_status", "data").
		From(documentsTable).
		Where(squirrel.Eq{"doctype": doctype, "id": id}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row documentRow
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(doctype, id)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return row.document()
}

// Update replaces the data and status of an existing document whose stored
// status is still expected. Concurrent writers serialize on the row lock and
// the loser sees the new status.
func (r *DocumentRepo) Update(ctx context.Context, doc *entity.Document, expected entity.DocStatus) error {
	q := r.Builder().
		Update(documentsTable).
		SetMap(map[string]any{
			"doc_status": int16(doc.Status()),
			"owner":      nullString(doc.Values.GetString(metadata.FieldOwner)),
			"updated_at": timestamp(doc.Values, metadata.FieldUpdatedAt),
			"data":       doc.Values,
		}).
		Where(squirrel.Eq{"doctype": doc.Doctype, "id": doc.ID(), "doc_status": int16(expected)})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := r.txManager.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", documentsTable, err)
	}
	if tag.RowsAffected() == 0 {
		current, err := r.Get(ctx, doc.Doctype, doc.ID())
		if err != nil {
			return err
		}
		return apperror.NewStatusChanged(expected.String(), current.Status().String()).
			WithDetail("doctype", doc.Doctype).
			WithDetail("id", doc.ID())
	}
	return nil
}

// List returns one page of documents matching f, with the total match count.
func (r *DocumentRepo) List(ctx context.Context, c *schema.Compiled, f domain.ListFilter) (domain.ListResult[*entity.Document], error) {
	result := domain.ListResult[*entity.Document]{
		Limit:  f.Limit,
		Offset: f.Offset,
	}

	q := r.Builder().
		Select("doctype", "doc_status", "data").
		From(documentsTable).
		Where(squirrel.Eq{"doctype": c.Doctype})

	q, err := query.ApplyFilters(q, c, f.Filters, Dialect{})
	if err != nil {
		return result, err
	}

	countSQL, countArgs, err := r.Builder().
		Select("COUNT(*)").
		FromSelect(q, "sub").
		ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
		return result, fmt.Errorf("count: %w", err)
	}

	if f.OrderBy != "" {
		orderBy, err := query.OrderBy(c, f.OrderBy, Dialect{})
		if err != nil {
			return result, err
		}
		q = q.OrderBy(orderBy, "id")
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}

	var rows []documentRow
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return result, fmt.Errorf("list: %w", err)
	}

	result.Items = make([]*entity.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.document()
		if err != nil {
			return result, err
		}
		result.Items = append(result.Items, doc)
	}
	return result, nil
}

func (row documentRow) document() (*entity.Document, error) {
	status, err := entity.ParseDocStatus(int64(row.DocStatus))
	if err != nil {
		return nil, fmt.Errorf("stored document: %w", err)
	}
	return entity.Restore(row.Doctype, status, row.Data)
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// timestamp reads an RFC 3339 value written by the document defaults; a
// missing or unparsable value falls back to now.
func timestamp(values entity.Values, field string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, values.GetString(field)); err == nil {
		return t
	}
	return time.Now().UTC()
}
