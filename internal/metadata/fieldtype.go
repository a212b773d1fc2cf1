package metadata

import (
	"strings"

	"docforge/internal/core/apperror"
)

// FieldType is the closed set of field type variants a doctype may declare.
// Every variant has validate, storage and describe-type behavior; see
// Validate, Storage and Describe.
type FieldType string

const (
	TypeText             FieldType = "Text"
	TypeLongText         FieldType = "Long Text"
	TypePassword         FieldType = "Password"
	TypeData             FieldType = "Data"
	TypeEmail            FieldType = "Email"
	TypeInteger          FieldType = "Integer"
	TypeFloat            FieldType = "Float"
	TypeCurrency         FieldType = "Currency"
	TypeCheck            FieldType = "Check"
	TypeJSON             FieldType = "JSON"
	TypeCode             FieldType = "Code"
	TypeSelect           FieldType = "Select"
	TypeFile             FieldType = "File"
	TypeReference        FieldType = "Reference"
	TypeVirtualReference FieldType = "Virtual Reference"
	TypeDate             FieldType = "Date"
	TypeTime             FieldType = "Time"
	TypeDatetime         FieldType = "Datetime"
	TypeReferenceTable   FieldType = "Reference Table"
	TypeExtend           FieldType = "Extend"
	TypeVector           FieldType = "Vector"
)

// FieldTypes lists every registered variant in declaration order.
var FieldTypes = []FieldType{
	TypeText, TypeLongText, TypePassword, TypeData, TypeEmail,
	TypeInteger, TypeFloat, TypeCurrency, TypeCheck, TypeJSON,
	TypeCode, TypeSelect, TypeFile, TypeReference, TypeVirtualReference,
	TypeDate, TypeTime, TypeDatetime, TypeReferenceTable, TypeExtend,
	TypeVector,
}

// StorageType tells the persistence layer which column type a field needs.
type StorageType string

const (
	StorageText    StorageType = "Text"
	StorageFloat   StorageType = "Float"
	StorageInteger StorageType = "Integer"
	// StorageNull means the field has no column; the relation is structural.
	StorageNull StorageType = "Null"
)

// ParseFieldType resolves a type tag read from a doctype definition.
// Matching is case-insensitive; the canonical spelling is returned.
func ParseFieldType(s string) (FieldType, error) {
	s = strings.TrimSpace(s)
	for _, t := range FieldTypes {
		if strings.EqualFold(string(t), s) {
			return t, nil
		}
	}
	return "", apperror.NewUnknownFieldType(s)
}

// Valid reports whether t is a registered variant.
func (t FieldType) Valid() bool {
	switch t {
	case TypeText, TypeLongText, TypePassword, TypeData, TypeEmail,
		TypeInteger, TypeFloat, TypeCurrency, TypeCheck, TypeJSON,
		TypeCode, TypeSelect, TypeFile, TypeReference, TypeVirtualReference,
		TypeDate, TypeTime, TypeDatetime, TypeReferenceTable, TypeExtend,
		TypeVector:
		return true
	}
	return false
}

// UnmarshalText rejects unregistered type tags at the definition boundary.
// Both encoding/json and yaml.v3 go through it.
func (t *FieldType) UnmarshalText(text []byte) error {
	parsed, err := ParseFieldType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// IsRelational reports whether the variant resolves another doctype's whole
// schema (Reference Table, Extend).
func (t FieldType) IsRelational() bool {
	return t == TypeReferenceTable || t == TypeExtend
}

// NeedsReference reports whether a field of this type must name a doctype.
func (t FieldType) NeedsReference() bool {
	switch t {
	case TypeReference, TypeVirtualReference, TypeReferenceTable, TypeExtend:
		return true
	}
	return false
}

// Storage returns the column type for the variant.
func (t FieldType) Storage() StorageType {
	switch t {
	case TypeInteger, TypeCheck:
		return StorageInteger
	case TypeFloat, TypeCurrency:
		return StorageFloat
	case TypeReferenceTable, TypeExtend:
		return StorageNull
	default:
		return StorageText
	}
}
