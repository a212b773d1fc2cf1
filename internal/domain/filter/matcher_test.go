package filter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docforge/internal/core/apperror"
	"docforge/internal/metadata"
	"docforge/internal/schema"
)

func compileTask(t *testing.T) *schema.Compiled {
	t.Helper()
	reg := metadata.NewRegistry().MustRegister(
		metadata.Doctype{Name: "Task Log", Fields: []metadata.FieldConfig{
			{Name: "note", Type: metadata.TypeData},
		}},
		metadata.Doctype{Name: "Task", Fields: []metadata.FieldConfig{
			{Name: "title", Type: metadata.TypeData, Required: true},
			{Name: "status", Type: metadata.TypeSelect, Options: "Open\nClosed"},
			{Name: "points", Type: metadata.TypeInteger},
			{Name: "estimate", Type: metadata.TypeFloat},
			{Name: "done", Type: metadata.TypeCheck},
			{Name: "log", Type: metadata.TypeReferenceTable, Reference: "Task Log"},
		}},
	)
	c, err := schema.NewCompiler(reg).CompileByName(context.Background(), "Task", schema.Options{})
	require.NoError(t, err)
	return c
}

func TestListValidate(t *testing.T) {
	c := compileTask(t)

	list := List{
		MustNew("points", Greater, "3"),
		MustNew("estimate", InList, []any{"1.5", 2}),
		MustNew("status", Equal, "Open"),
		MustNew("title", Like, "%fix%"),
		MustNew("owner", IsNull, 1),
		MustNew("doc_status", Equal, 0),
	}
	bound, err := list.Validate(c)
	require.NoError(t, err)

	assert.Equal(t, int64(3), bound[0].Operand())
	assert.Equal(t, []any{1.5, 2.0}, bound[1].Operand())
	assert.Equal(t, "3", list[0].Operand(), "input list is not modified")
}

func TestListValidateRejects(t *testing.T) {
	c := compileTask(t)

	tests := []struct {
		name string
		f    Filter
	}{
		{name: "unknown field", f: MustNew("nope", Equal, 1)},
		{name: "table field", f: MustNew("log", IsNull, 1)},
		{name: "select outside options", f: MustNew("status", Equal, "Pending")},
		{name: "integer operand", f: MustNew("points", Less, "abc")},
		{name: "membership element", f: MustNew("points", InList, []any{1, "x"})},
		{name: "check operand", f: MustNew("done", Equal, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := List{tt.f}.Validate(c)
			require.Error(t, err)
			assert.True(t, apperror.IsCode(err, apperror.CodeInvalidFilter))
		})
	}
}

func TestMatcher(t *testing.T) {
	doc := map[string]any{
		"title":    "fix login bug",
		"status":   "Open",
		"points":   int64(5),
		"estimate": 2.5,
		"done":     int64(0),
		"owner":    nil,
	}

	tests := []struct {
		name string
		list List
		want bool
	}{
		{name: "empty list", list: nil, want: true},
		{name: "equal", list: List{MustNew("status", Equal, "Open")}, want: true},
		{name: "not equal", list: List{MustNew("status", NotEqual, "Open")}, want: false},
		{name: "greater int vs int", list: List{MustNew("points", Greater, 3)}, want: true},
		{name: "greater or equal float vs int", list: List{MustNew("estimate", GreaterOrEqual, 2)}, want: true},
		{name: "less", list: List{MustNew("points", Less, 5)}, want: false},
		{name: "less or equal", list: List{MustNew("points", LessOrEqual, 5)}, want: true},
		{name: "like", list: List{MustNew("title", Like, "fix%")}, want: true},
		{name: "like single char", list: List{MustNew("title", Like, "fix _ogin%")}, want: true},
		{name: "like escapes regexp", list: List{MustNew("title", Like, "fix.*")}, want: false},
		{name: "not like", list: List{MustNew("title", NotLike, "%bug")}, want: false},
		{name: "in", list: List{MustNew("status", InList, []string{"Open", "Closed"})}, want: true},
		{name: "in numbers", list: List{MustNew("points", InList, []int{1, 5})}, want: true},
		{name: "not in", list: List{MustNew("status", NotInList, []string{"Closed"})}, want: true},
		{name: "is null on null", list: List{MustNew("owner", IsNull, 1)}, want: true},
		{name: "is null on absent", list: List{MustNew("assignee", IsNull, 1)}, want: true},
		{name: "is not null", list: List{MustNew("title", IsNotNull, 1)}, want: true},
		{name: "null never compares", list: List{MustNew("owner", NotEqual, "u-1")}, want: false},
		{name: "absent never in", list: List{MustNew("assignee", NotInList, []string{"x"})}, want: false},
		{name: "type mismatch is no match", list: List{MustNew("title", Greater, 1)}, want: false},
		{
			name: "conjunction",
			list: List{
				MustNew("status", Equal, "Open"),
				MustNew("points", Greater, 3),
				MustNew("title", Like, "%login%"),
			},
			want: true,
		},
		{
			name: "conjunction with one false",
			list: List{
				MustNew("status", Equal, "Open"),
				MustNew("done", Equal, 1),
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewMatcher(tt.list)
			require.NoError(t, err)
			got, err := m.Match(doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLikeToRegexp(t *testing.T) {
	assert.Equal(t, `(?s)^a.*b\.c.$`, LikeToRegexp("a%b.c_"))
}
