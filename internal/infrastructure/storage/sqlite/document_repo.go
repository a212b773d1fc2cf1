package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"docforge/internal/core/apperror"
	"docforge/internal/core/entity"
	"docforge/internal/domain"
	"docforge/internal/infrastructure/storage/query"
	"docforge/internal/metadata"
	"docforge/internal/schema"
)

const documentsTable = "sys_documents"

// Dialect reads fields with json_extract; id and doc_status are real columns.
type Dialect struct{}

// Expr implements query.Dialect.
func (Dialect) Expr(f *schema.Field) string {
	name := f.Name()
	if f.Standard && (name == metadata.FieldID || name == metadata.FieldDocStatus) {
		return name
	}
	return fmt.Sprintf("json_extract(data, '$.%s')", name)
}

// DocumentRepo stores documents of every doctype in one table with a JSON
// text body.
type DocumentRepo struct {
	txManager *TxManager
}

var _ domain.DocumentRepository = (*DocumentRepo)(nil)

// NewDocumentRepo creates a document repository.
func NewDocumentRepo(txManager *TxManager) *DocumentRepo {
	return &DocumentRepo{txManager: txManager}
}

// Create inserts doc. A duplicate id within the doctype is a CONFLICT.
func (r *DocumentRepo) Create(ctx context.Context, doc *entity.Document) error {
	data, err := doc.Values.Value()
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	sqlStr, args, err := squirrel.Insert(documentsTable).
		Columns("doctype", "id", "doc_status", "data").
		Values(doc.Doctype, doc.ID(), doc.Status().Int(), data).
		Suffix("ON CONFLICT(doctype, id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	res, err := r.txManager.conn(ctx).ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("insert %s: %w", documentsTable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperror.NewConflict("document already exists").
			WithDetail("doctype", doc.Doctype).
			WithDetail("id", doc.ID())
	}
	return nil
}

// Get returns a document or NOT_FOUND.
func (r *DocumentRepo) Get(ctx context.Context, doctype, id string) (*entity.Document, error) {
	sqlStr, args, err := squirrel.Select("doc_status", "data").
		From(documentsTable).
		Where(squirrel.Eq{"doctype": doctype, "id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var (
		status int64
		values entity.Values
	)
	err = r.txManager.conn(ctx).QueryRowContext(ctx, sqlStr, args...).Scan(&status, &values)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound(doctype, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return restore(doctype, status, values)
}

// Update replaces the data and status of an existing document whose stored
// status is still expected.
func (r *DocumentRepo) Update(ctx context.Context, doc *entity.Document, expected entity.DocStatus) error {
	data, err := doc.Values.Value()
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	sqlStr, args, err := squirrel.Update(documentsTable).
		Set("doc_status", doc.Status().Int()).
		Set("data", data).
		Where(squirrel.Eq{"doctype": doc.Doctype, "id": doc.ID(), "doc_status": expected.Int()}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	res, err := r.txManager.conn(ctx).ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("update %s: %w", documentsTable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return r.staleUpdate(ctx, doc, expected)
	}
	return nil
}

// staleUpdate explains an update that matched no row.
func (r *DocumentRepo) staleUpdate(ctx context.Context, doc *entity.Document, expected entity.DocStatus) error {
	current, err := r.Get(ctx, doc.Doctype, doc.ID())
	if err != nil {
		return err
	}
	return apperror.NewStatusChanged(expected.String(), current.Status().String()).
		WithDetail("doctype", doc.Doctype).
		WithDetail("id", doc.ID())
}

// List returns one page of documents matching f, with the total match count.
func (r *DocumentRepo) List(ctx context.Context, c *schema.Compiled, f domain.ListFilter) (domain.ListResult[*entity.Document], error) {
	result := domain.ListResult[*entity.Document]{
		Limit:  f.Limit,
		Offset: f.Offset,
	}

	q := squirrel.Select("doc_status", "data").
		From(documentsTable).
		Where(squirrel.Eq{"doctype": c.Doctype})

	q, err := query.ApplyFilters(q, c, f.Filters, Dialect{})
	if err != nil {
		return result, err
	}

	countSQL, countArgs, err := squirrel.Select("COUNT(*)").FromSelect(q, "sub").ToSql()
	if err != nil {
		return result, fmt.Errorf("build count query: %w", err)
	}

	conn := r.txManager.conn(ctx)
	if err := conn.QueryRowContext(ctx, countSQL, countArgs...).Scan(&result.TotalCount); err != nil {
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

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return result, fmt.Errorf("build query: %w", err)
	}

	rows, err := conn.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return result, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	result.Items = []*entity.Document{}
	for rows.Next() {
		var (
			status int64
			values entity.Values
		)
		if err := rows.Scan(&status, &values); err != nil {
			return result, fmt.Errorf("scan document: %w", err)
		}
		doc, err := restore(c.Doctype, status, values)
		if err != nil {
			return result, err
		}
		result.Items = append(result.Items, doc)
	}
	return result, rows.Err()
}

func restore(doctype string, status int64, values entity.Values) (*entity.Document, error) {
	s, err := entity.ParseDocStatus(status)
	if err != nil {
		return nil, fmt.Errorf("stored document: %w", err)
	}
	return entity.Restore(doctype, s, values)
}

// TransitionLog appends applied lifecycle transitions to sys_transitions.
// It implements entity.TransitionRecorder.
type TransitionLog struct {
	txManager *TxManager
}

var _ entity.TransitionRecorder = (*TransitionLog)(nil)

// NewTransitionLog creates a transition log.
func NewTransitionLog(txManager *TxManager) *TransitionLog {
	return &TransitionLog{txManager: txManager}
}

// RecordTransition implements entity.TransitionRecorder.
func (l *TransitionLog) RecordTransition(ctx context.Context, t entity.Transition) error {
	sqlStr, args, err := squirrel.Insert("sys_transitions").
		Columns("doctype", "document_id", "action", "from_status", "to_status", "user_id", "created_at").
		Values(t.Doctype, t.DocumentID, string(t.Action), t.From.Int(), t.To.Int(), t.UserID,
			t.At.UTC().Format(time.RFC3339Nano)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := l.txManager.conn(ctx).ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return nil
}

// History returns the transitions of one document, oldest first.
func (l *TransitionLog) History(ctx context.Context, doctype, documentID string) ([]entity.Transition, error) {
	rows, err := l.txManager.conn(ctx).QueryContext(ctx, `
		SELECT action, from_status, to_status, user_id, created_at
		FROM sys_transitions
		WHERE doctype = ? AND document_id = ?
		ORDER BY rowid`, doctype, documentID)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []entity.Transition
	for rows.Next() {
		var (
			action   string
			from, to int64
			at       string
		)
		t := entity.Transition{Doctype: doctype, DocumentID: documentID}
		if err := rows.Scan(&action, &from, &to, &t.UserID, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.Action = entity.Action(action)
		t.From = entity.DocStatus(from)
		t.To = entity.DocStatus(to)
		t.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, t)
	}
	return out, rows.Err()
}
