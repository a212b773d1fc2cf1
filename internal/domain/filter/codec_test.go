package filter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docforge/internal/core/apperror"
)

func TestParseOperator(t *testing.T) {
	for _, op := range Operators {
		got, err := ParseOperator(string(op))
		require.NoError(t, err)
		assert.Equal(t, op, got)
	}

	got, err := ParseOperator("  not   like ")
	require.NoError(t, err)
	assert.Equal(t, NotLike, got)

	_, err = ParseOperator("BETWEEN")
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidFilter))
}

func TestListRoundTrip(t *testing.T) {
	list := List{
		MustNew("status", Equal, "Draft"),
		MustNew("status", NotEqual, "Cancelled"),
		MustNew("qty", Greater, 10),
		MustNew("qty", GreaterOrEqual, int64(10)),
		MustNew("amount", Less, 99.5),
		MustNew("amount", LessOrEqual, 100),
		MustNew("customer", Like, "AC%"),
		MustNew("customer", NotLike, "%Ltd_"),
		MustNew("status", InList, []string{"Draft", "Submitted"}),
		MustNew("idx", NotInList, []int{1, 2, 3}),
		MustNew("owner", IsNull, 1),
		MustNew("owner", IsNotNull, "0"),
	}
	require.Len(t, list, len(Operators))

	data, err := json.Marshal(list)
	require.NoError(t, err)

	var back List
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, list, back)

	again, err := json.Marshal(back)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))
}

func TestListRoundTrip_WholeFloats(t *testing.T) {
	list := List{
		MustNew("amount", GreaterOrEqual, 12.0),
		MustNew("amount", InList, []float64{1, 2.5}),
		MustNew("amount", Less, float32(3)),
		MustNew("amount", NotEqual, -0.25),
	}

	data, err := json.Marshal(list)
	require.NoError(t, err)
	assert.Equal(t, `[["amount",">=",12],["amount","IN",[1,2.5]],["amount","<",3],["amount","!=",-0.25]]`, string(data))

	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, list, back)
	assert.Equal(t, int64(12), back[0].Operand())
	assert.Equal(t, []any{int64(1), 2.5}, back[1].Operand())
}

func TestWireShape(t *testing.T) {
	data, err := json.Marshal(List{
		MustNew("status", InList, []string{"Draft", "Submitted"}),
		MustNew("owner", IsNotNull, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, `[["status","IN",["Draft","Submitted"]],["owner","IS NOT NULL",1]]`, string(data))

	empty, err := json.Marshal(List(nil))
	require.NoError(t, err)
	assert.Equal(t, `[]`, string(empty))
}

func TestParseMembership(t *testing.T) {
	list, err := Parse([]byte(`[["status", "IN", ["Draft", "Submitted"]]]`))
	require.NoError(t, err)
	require.Len(t, list, 1)

	m, ok := list[0].(Membership)
	require.True(t, ok)
	assert.Equal(t, "status", m.Field())
	assert.False(t, m.Negate)
	assert.Equal(t, []any{"Draft", "Submitted"}, m.Values)

	_, err = Parse([]byte(`[["status", "IN", "Draft"]]`))
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeInvalidFilter, appErr.Code)
	assert.Equal(t, 0, appErr.Details["index"])
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"not an array":     `{"field": "a"}`,
		"short tuple":      `[["a", "="]]`,
		"long tuple":       `[["a", "=", 1, 2]]`,
		"numeric field":    `[[1, "=", 1]]`,
		"unknown operator": `[["a", "~", 1]]`,
		"null comparison":  `[["a", "=", null]]`,
		"list comparison":  `[["a", ">", [1, 2]]]`,
		"numeric pattern":  `[["a", "LIKE", 5]]`,
		"empty field":      `[["", "=", 1]]`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(input))
			require.Error(t, err)
			assert.True(t, apperror.IsCode(err, apperror.CodeInvalidFilter), err.Error())
		})
	}
}

func TestNullCheckKeepsMarker(t *testing.T) {
	list, err := Parse([]byte(`[["owner","IS NULL","anything"],["owner","IS NOT NULL",0]]`))
	require.NoError(t, err)

	assert.Equal(t, NullCheck{Name: "owner", Marker: "anything"}, list[0])
	assert.Equal(t, NullCheck{Name: "owner", Negate: true, Marker: int64(0)}, list[1])

	data, err := json.Marshal(list)
	require.NoError(t, err)
	assert.Equal(t, `[["owner","IS NULL","anything"],["owner","IS NOT NULL",0]]`, string(data))
}
