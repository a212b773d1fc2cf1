// Package filter implements the document query predicate model: a filter is
// a (field, operator, value) triple and a List is their implicit AND.
package filter

import (
	"strings"

	"docforge/internal/core/apperror"
)

// Operator is one of the twelve comparison kinds.
type Operator string

const (
	Equal          Operator = "="
	NotEqual       Operator = "!="
	Greater        Operator = ">"
	GreaterOrEqual Operator = ">="
	Less           Operator = "<"
	LessOrEqual    Operator = "<="
	Like           Operator = "LIKE"
	NotLike        Operator = "NOT LIKE"
	InList         Operator = "IN"
	NotInList      Operator = "NOT IN"
	IsNull         Operator = "IS NULL"
	IsNotNull      Operator = "IS NOT NULL"
)

// Operators lists every operator.
var Operators = []Operator{
	Equal, NotEqual, Greater, GreaterOrEqual, Less, LessOrEqual,
	Like, NotLike, InList, NotInList, IsNull, IsNotNull,
}

// Category groups operators by the value shape they take.
type Category int

const (
	// CategoryComparison takes a scalar of the field's value type.
	CategoryComparison Category = iota
	// CategoryMembership takes a list of the field's value type.
	CategoryMembership
	// CategoryNullCheck takes a presence marker that carries no meaning.
	CategoryNullCheck
	// CategoryPattern takes a pattern string with % as the wildcard.
	CategoryPattern
)

// Category returns the operator's value-shape category.
func (o Operator) Category() Category {
	switch o {
	case InList, NotInList:
		return CategoryMembership
	case IsNull, IsNotNull:
		return CategoryNullCheck
	case Like, NotLike:
		return CategoryPattern
	}
	return CategoryComparison
}

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	for _, op := range Operators {
		if o == op {
			return true
		}
	}
	return false
}

// ParseOperator accepts the canonical spelling in any case and with any
// amount of inner whitespace ("not  in" -> NOT IN).
func ParseOperator(s string) (Operator, error) {
	op := Operator(strings.ToUpper(strings.Join(strings.Fields(s), " ")))
	if !op.Valid() {
		return "", apperror.NewInvalidFilter("unknown operator: " + s).
			WithDetail("operator", s)
	}
	return op, nil
}
