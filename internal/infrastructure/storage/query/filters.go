// Package query translates filter lists into SQL WHERE clauses for the
// document stores.
package query

import (
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"docforge/internal/core/apperror"
	"docforge/internal/domain/filter"
	"docforge/internal/metadata"
	"docforge/internal/schema"
)

// Dialect maps a compiled field to the SQL expression that reads it. Field
// names reaching a Dialect are already whitelisted against the schema.
type Dialect interface {
	Expr(f *schema.Field) string
}

// ApplyFilters adds one WHERE condition per filter. Only fields of c that
// have a storage column are accepted; LIKE patterns are passed verbatim.
func ApplyFilters(q squirrel.SelectBuilder, c *schema.Compiled, filters filter.List, d Dialect) (squirrel.SelectBuilder, error) {
	for _, f := range filters {
		field, ok := c.Field(f.Field())
		if !ok || field.Storage == metadata.StorageNull {
			return q, apperror.NewInvalidFilter(fmt.Sprintf("invalid filter column: %s", f.Field())).
				WithDetail("field", f.Field())
		}
		col := d.Expr(field)

		switch t := f.(type) {
		case filter.Comparison:
			switch t.Op {
			case filter.Equal:
				q = q.Where(squirrel.Eq{col: t.Value})
			case filter.NotEqual:
				q = q.Where(squirrel.NotEq{col: t.Value})
			case filter.Greater:
				q = q.Where(squirrel.Gt{col: t.Value})
			case filter.GreaterOrEqual:
				q = q.Where(squirrel.GtOrEq{col: t.Value})
			case filter.Less:
				q = q.Where(squirrel.Lt{col: t.Value})
			case filter.LessOrEqual:
				q = q.Where(squirrel.LtOrEq{col: t.Value})
			}
		case filter.Membership:
			if t.Negate {
				q = q.Where(squirrel.NotEq{col: t.Values})
			} else {
				q = q.Where(squirrel.Eq{col: t.Values})
			}
		case filter.NullCheck:
			if t.Negate {
				q = q.Where(squirrel.NotEq{col: nil})
			} else {
				q = q.Where(squirrel.Eq{col: nil})
			}
		case filter.Pattern:
			if t.Negate {
				q = q.Where(squirrel.NotLike{col: t.Pattern})
			} else {
				q = q.Where(squirrel.Like{col: t.Pattern})
			}
		}
	}
	return q, nil
}

// OrderBy parses "field" or "-field" into an ORDER BY term for a field of c.
func OrderBy(c *schema.Compiled, orderBy string, d Dialect) (string, error) {
	name := strings.TrimSpace(orderBy)
	dir := "ASC"
	if strings.HasPrefix(name, "-") {
		name = strings.TrimPrefix(name, "-")
		dir = "DESC"
	}
	field, ok := c.Field(name)
	if !ok || field.Storage == metadata.StorageNull {
		return "", apperror.NewValidation(fmt.Sprintf("invalid order field: %s", name)).
			WithDetail("field", name)
	}
	return d.Expr(field) + " " + dir, nil
}
