package metadata

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt cost used when encoding Password fields.
var PasswordCost = bcrypt.DefaultCost

// EncodeStorage converts a validated value into its column representation.
// Null-storage variants have no column and encode to nil.
func (t FieldType) EncodeStorage(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeReferenceTable, TypeExtend:
		return nil, nil

	case TypeVector:
		vec, err := toVector(v)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(vec)
		if err != nil {
			return nil, fmt.Errorf("encode vector: %w", err)
		}
		return string(b), nil

	case TypePassword:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("password must be a string, got %T", v)
		}
		if isBcryptHash(s) {
			return s, nil
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(s), PasswordCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		return string(hash), nil

	case TypeCheck:
		if b, ok := v.(bool); ok {
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		}
	}
	return v, nil
}

// DecodeStorage is the inverse of EncodeStorage where one exists. Password
// hashes are returned as stored.
func (t FieldType) DecodeStorage(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if t == TypeVector {
		switch s := v.(type) {
		case string:
			return toVector(s)
		case []byte:
			return toVector(string(s))
		}
		return toVector(v)
	}
	return v, nil
}

// CheckPassword compares a plain password with a stored Password value.
func CheckPassword(stored, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plain)) == nil
}

func isBcryptHash(s string) bool {
	if len(s) != 60 {
		return false
	}
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
