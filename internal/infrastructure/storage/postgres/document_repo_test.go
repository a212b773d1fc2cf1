package postgres

import (
	"context"
	"testing"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docforge/internal/domain/filter"
	"docforge/internal/infrastructure/storage/query"
	"docforge/internal/metadata"
	"docforge/internal/schema"
)

func compileTask(t *testing.T) *schema.Compiled {
	t.Helper()
	reg := metadata.NewRegistry().MustRegister(metadata.Doctype{
		Name: "Task",
		Fields: []metadata.FieldConfig{
			{Name: "title", Type: metadata.TypeData},
			{Name: "priority", Type: metadata.TypeInteger},
			{Name: "estimate", Type: metadata.TypeFloat},
			{Name: "done", Type: metadata.TypeCheck},
		},
	})
	c, err := schema.NewCompiler(reg).CompileByName(context.Background(), "Task", schema.Options{})
	require.NoError(t, err)
	return c
}

func TestDialectExpr(t *testing.T) {
	c := compileTask(t)

	tests := []struct {
		field string
		want  string
	}{
		{"id", "id"},
		{"doc_status", "doc_status"},
		{"created_at", "created_at"},
		{"owner", "owner"},
		{"created_by", "data->>'created_by'"},
		{"title", "data->>'title'"},
		{"priority", "(data->>'priority')::numeric"},
		{"estimate", "(data->>'estimate')::numeric"},
		{"done", "(data->>'done')::numeric"},
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			f, ok := c.Field(tt.field)
			require.True(t, ok)
			assert.Equal(t, tt.want, Dialect{}.Expr(f))
		})
	}
}

func TestDialectWithFilters(t *testing.T) {
	c := compileTask(t)
	base := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar).
		Select("data").From(documentsTable).Where(squirrel.Eq{"doctype": "Task"})

	q, err := query.ApplyFilters(base, c, filter.List{
		filter.MustNew("priority", filter.GreaterOrEqual, 2),
		filter.MustNew("doc_status", filter.Equal, 1),
		filter.MustNew("title", filter.Like, "%bug%"),
	}, Dialect{})
	require.NoError(t, err)

	sql, args, err := q.ToSql()
	require.NoError(t, err)
	assert.Equal(t,
		"SELECT data FROM sys_documents WHERE doctype = $1 AND (data->>'priority')::numeric >= $2 AND doc_status = $3 AND data->>'title' LIKE $4",
		sql)
	assert.Equal(t, []any{"Task", int64(2), int64(1), "%bug%"}, args)
}

func TestDiff(t *testing.T) {
	changes := Diff(
		map[string]any{"doc_status": int64(0), "gone": "x", "same": []any{"a"}},
		map[string]any{"doc_status": int64(1), "added": true, "same": []any{"a"}},
	)

	assert.Equal(t, map[string]any{
		"doc_status": map[string]any{"old": int64(0), "new": int64(1)},
		"gone":       map[string]any{"old": "x", "new": nil},
		"added":      map[string]any{"old": nil, "new": true},
	}, changes)
}
