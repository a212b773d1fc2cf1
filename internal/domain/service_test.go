package domain

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docforge/internal/core/apperror"
	appctx "docforge/internal/core/context"
	"docforge/internal/core/entity"
	"docforge/internal/domain/filter"
	"docforge/internal/metadata"
	"docforge/internal/schema"
)

type memRepo struct {
	mu   sync.Mutex
	docs map[string]*entity.Document
}

func newMemRepo() *memRepo { return &memRepo{docs: map[string]*entity.Document{}} }

func (r *memRepo) key(doctype, id string) string { return doctype + "/" + id }

func (r *memRepo) Create(_ context.Context, doc *entity.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.key(doc.Doctype, doc.ID())
	if _, ok := r.docs[k]; ok {
		return apperror.NewConflict("document already exists")
	}
	r.docs[k] = doc
	return nil
}

func (r *memRepo) Get(_ context.Context, doctype, id string) (*entity.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[r.key(doctype, id)]
	if !ok {
		return nil, apperror.NewNotFound(doctype, id)
	}
	return doc, nil
}

func (r *memRepo) Update(_ context.Context, doc *entity.Document, expected entity.DocStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := r.key(doc.Doctype, doc.ID())
	cur, ok := r.docs[k]
	if !ok {
		return apperror.NewNotFound(doc.Doctype, doc.ID())
	}
	if cur.Status() != expected {
		return apperror.NewStatusChanged(expected.String(), cur.Status().String())
	}
	r.docs[k] = doc
	return nil
}

// List evaluates filters with the in-memory matcher.
func (r *memRepo) List(_ context.Context, c *schema.Compiled, f ListFilter) (ListResult[*entity.Document], error) {
	m, err := filter.NewMatcher(f.Filters)
	if err != nil {
		return ListResult[*entity.Document]{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	res := ListResult[*entity.Document]{Limit: f.Limit, Offset: f.Offset}
	for _, doc := range r.docs {
		if doc.Doctype != c.Doctype {
			continue
		}
		ok, err := m.Match(doc.Fields())
		if err != nil {
			return res, err
		}
		if ok {
			res.Items = append(res.Items, doc)
		}
	}
	res.TotalCount = int64(len(res.Items))
	return res, nil
}

type compilerSource struct{ compiler *schema.Compiler }

func (s compilerSource) Get(ctx context.Context, doctype string) (*schema.Compiled, error) {
	return s.compiler.CompileByName(ctx, doctype, schema.Options{})
}

// memTx restores the repository snapshot when fn fails.
type memTx struct {
	repo  *memRepo
	calls int
}

func (m *memTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	m.repo.mu.Lock()
	snapshot := make(map[string]*entity.Document, len(m.repo.docs))
	for k, v := range m.repo.docs {
		snapshot[k] = v
	}
	m.repo.mu.Unlock()

	if err := fn(ctx); err != nil {
		m.repo.mu.Lock()
		m.repo.docs = snapshot
		m.repo.mu.Unlock()
		return err
	}
	return nil
}

var orderDoctype = metadata.Doctype{
	Name: "Order",
	Fields: []metadata.FieldConfig{
		{Name: "customer", Type: metadata.TypeData, Required: true},
		{Name: "qty", Type: metadata.TypeInteger, Default: 1},
		{Name: "tags", Type: metadata.TypeVector},
		{Name: "comment", Type: metadata.TypeText, AllowOnSubmit: true},
	},
}

type fixture struct {
	svc         *DocumentService
	repo        *memRepo
	tx          *memTx
	transitions []entity.Transition
	recordErr   error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := metadata.NewRegistry().MustRegister(orderDoctype)
	repo := newMemRepo()
	f := &fixture{repo: repo, tx: &memTx{repo: repo}}
	f.svc = NewDocumentService(DocumentServiceConfig{
		Schemas:   compilerSource{compiler: schema.NewCompiler(reg)},
		Repo:      f.repo,
		TxManager: f.tx,
		Recorder: entity.TransitionRecorderFunc(func(ctx context.Context, tr entity.Transition) error {
			if f.recordErr != nil {
				return f.recordErr
			}
			f.transitions = append(f.transitions, tr)
			return nil
		}),
	})
	return f
}

func userCtx() context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{UserID: "u1"})
}

func TestDocumentService_Create(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()

	doc, err := f.svc.Create(ctx, "Order", map[string]any{
		"customer":   "ACME",
		"tags":       []any{1, 2},
		"doc_status": 2,
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StatusDraft, doc.Status())
	assert.NotEmpty(t, doc.ID())
	assert.Equal(t, int64(1), doc.Values["qty"])
	assert.Equal(t, "u1", doc.Values["owner"])
	assert.Equal(t, []float64{1, 2}, doc.Values["tags"], "read back in decoded form")
	assert.Equal(t, 1, f.tx.calls)

	stored, err := f.repo.Get(ctx, "Order", doc.ID())
	require.NoError(t, err)
	assert.Equal(t, "[1,2]", stored.Values["tags"], "stored in encoded form")

	_, err = f.svc.Create(ctx, "Order", map[string]any{"qty": "x"})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = f.svc.Create(ctx, "Missing", map[string]any{})
	assert.True(t, apperror.IsCode(err, apperror.CodeLookupFailed))
}

func TestDocumentService_Hooks(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()

	var events []HookEvent
	record := func(ev HookEvent) Hook[*entity.Document] {
		return func(ctx context.Context, doc *entity.Document) error {
			events = append(events, ev)
			return nil
		}
	}
	for _, ev := range []HookEvent{BeforeCreate, AfterCreate, BeforeSubmit, AfterSubmit} {
		f.svc.Hooks().On(ev, record(ev))
	}
	f.svc.Hooks().On(AfterCancel, func(ctx context.Context, doc *entity.Document) error {
		return errors.New("after hooks only log")
	})

	doc, err := f.svc.Create(ctx, "Order", map[string]any{"customer": "ACME"})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, "Order", doc.ID())
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, "Order", doc.ID())
	require.NoError(t, err)
	assert.Equal(t, []HookEvent{BeforeCreate, AfterCreate, BeforeSubmit, AfterSubmit}, events)

	f.svc.Hooks().On(BeforeCreate, func(ctx context.Context, doc *entity.Document) error {
		return apperror.NewValidation("rejected by hook")
	})
	_, err = f.svc.Create(ctx, "Order", map[string]any{"customer": "B"})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestDocumentService_Lifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()

	doc, err := f.svc.Create(ctx, "Order", map[string]any{"customer": "ACME"})
	require.NoError(t, err)
	id := doc.ID()

	updated, err := f.svc.Update(ctx, "Order", id, map[string]any{"qty": 4, "owner": "intruder", "doc_status": 1})
	require.NoError(t, err)
	assert.Equal(t, int64(4), updated.Values["qty"])
	assert.Equal(t, "u1", updated.Values["owner"], "standard fields are not client-writable")
	assert.Equal(t, entity.StatusDraft, updated.Status())

	_, err = f.svc.Cancel(ctx, "Order", id)
	assert.True(t, apperror.IsCode(err, apperror.CodeIllegalTransition))
	assert.Empty(t, f.transitions, "an illegal transition records nothing")

	submitted, err := f.svc.Submit(ctx, "Order", id)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSubmitted, submitted.Status())
	require.Len(t, f.transitions, 1)
	assert.Equal(t, entity.Transition{
		Doctype: "Order", DocumentID: id, Action: entity.ActionSubmit,
		From: entity.StatusDraft, To: entity.StatusSubmitted, UserID: "u1",
		At: f.transitions[0].At,
	}, f.transitions[0])

	_, err = f.svc.Update(ctx, "Order", id, map[string]any{"qty": 5})
	assert.True(t, apperror.IsCode(err, apperror.CodeDocumentFrozen))

	commented, err := f.svc.Update(ctx, "Order", id, map[string]any{"comment": "ok"})
	require.NoError(t, err)
	assert.Equal(t, "ok", commented.Values["comment"])
	assert.Equal(t, entity.StatusSubmitted, commented.Status())

	f.recordErr = errors.New("audit unavailable")
	_, err = f.svc.Cancel(ctx, "Order", id)
	require.Error(t, err)
	assert.ErrorIs(t, err, f.recordErr)
	f.recordErr = nil

	rolledBack, err := f.svc.Get(ctx, "Order", id)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusSubmitted, rolledBack.Status())

	cancelled, err := f.svc.Cancel(ctx, "Order", id)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, cancelled.Status())

	_, err = f.svc.Submit(ctx, "Order", id)
	assert.True(t, apperror.IsCode(err, apperror.CodeIllegalTransition))

	_, err = f.svc.Submit(ctx, "Order", "missing")
	assert.True(t, apperror.IsNotFound(err))

	history, err := f.svc.History(ctx, "Order", id)
	require.NoError(t, err)
	assert.Empty(t, history, "no history reader configured")
}

func TestDocumentService_List(t *testing.T) {
	f := newFixture(t)
	ctx := userCtx()
	for _, raw := range []map[string]any{
		{"customer": "A", "qty": 1},
		{"customer": "B", "qty": 5},
		{"customer": "C", "qty": "9"},
	} {
		_, err := f.svc.Create(ctx, "Order", raw)
		require.NoError(t, err)
	}

	res, err := f.svc.List(ctx, "Order", ListFilter{Filters: filter.List{
		filter.MustNew("qty", filter.Greater, "2"),
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.TotalCount)
	for _, doc := range res.Items {
		assert.IsType(t, int64(0), doc.Values["qty"])
	}

	_, err = f.svc.List(ctx, "Order", ListFilter{Filters: filter.List{
		filter.MustNew("missing", filter.Equal, "x"),
	}})
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidFilter))

	values, err := f.svc.Validate(ctx, "Order", map[string]any{"customer": "Z", "qty": "3"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), values["qty"])
}

func TestDocumentService_InterleavedWrites(t *testing.T) {
	t.Run("update after a concurrent cancel", func(t *testing.T) {
		f := newFixture(t)
		ctx := userCtx()
		doc, err := f.svc.Create(ctx, "Order", map[string]any{"customer": "ACME"})
		require.NoError(t, err)
		id := doc.ID()
		_, err = f.svc.Submit(ctx, "Order", id)
		require.NoError(t, err)

		cancelled := false
		f.svc.Hooks().On(BeforeUpdate, func(ctx context.Context, doc *entity.Document) error {
			if cancelled {
				return nil
			}
			cancelled = true
			_, err := f.svc.Cancel(ctx, "Order", id)
			return err
		})

		_, err = f.svc.Update(ctx, "Order", id, map[string]any{"comment": "late"})
		require.Error(t, err)
		assert.True(t, apperror.IsCode(err, apperror.CodeConflict))

		final, err := f.svc.Get(ctx, "Order", id)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusCancelled, final.Status())
		assert.Nil(t, final.Values["comment"])
		require.Len(t, f.transitions, 2)
		assert.Equal(t, entity.StatusCancelled, f.transitions[1].To)
	})

	t.Run("second submit of the same draft", func(t *testing.T) {
		f := newFixture(t)
		ctx := userCtx()
		doc, err := f.svc.Create(ctx, "Order", map[string]any{"customer": "ACME"})
		require.NoError(t, err)
		id := doc.ID()

		raced := false
		f.svc.Hooks().On(BeforeSubmit, func(ctx context.Context, doc *entity.Document) error {
			if raced {
				return nil
			}
			raced = true
			_, err := f.svc.Submit(ctx, "Order", id)
			return err
		})

		_, err = f.svc.Submit(ctx, "Order", id)
		require.Error(t, err)
		assert.True(t, apperror.IsCode(err, apperror.CodeConflict))

		final, err := f.svc.Get(ctx, "Order", id)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusSubmitted, final.Status())
		require.Len(t, f.transitions, 1, "the losing submit records nothing")
	})
}
