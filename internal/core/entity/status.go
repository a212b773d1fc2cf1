package entity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// DocStatus is a document's lifecycle state. It is encoded as 0/1/2 only at
// the storage and wire boundary.
type DocStatus uint8

const (
	StatusDraft DocStatus = iota
	StatusSubmitted
	StatusCancelled
)

func (s DocStatus) String() string {
	switch s {
	case StatusDraft:
		return "Draft"
	case StatusSubmitted:
		return "Submitted"
	case StatusCancelled:
		return "Cancelled"
	}
	return "DocStatus(" + strconv.Itoa(int(s)) + ")"
}

// Valid reports whether s is one of the three states.
func (s DocStatus) Valid() bool {
	return s <= StatusCancelled
}

// Int returns the boundary encoding.
func (s DocStatus) Int() int64 { return int64(s) }

// ParseDocStatus decodes the boundary encoding. It accepts the integers 0-2
// in any numeric form, their decimal strings and the state names.
func ParseDocStatus(v any) (DocStatus, error) {
	var n int64
	switch t := v.(type) {
	case DocStatus:
		n = int64(t)
	case int:
		n = int64(t)
	case int64:
		n = t
	case float64:
		if t != float64(int64(t)) {
			return 0, fmt.Errorf("invalid doc_status %v", t)
		}
		n = int64(t)
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			return 0, fmt.Errorf("invalid doc_status %q", t)
		}
		n = i
	case string:
		for s := StatusDraft; s <= StatusCancelled; s++ {
			if strings.EqualFold(t, s.String()) {
				return s, nil
			}
		}
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid doc_status %q", t)
		}
		n = i
	default:
		return 0, fmt.Errorf("invalid doc_status type %T", v)
	}
	if n < 0 || n > int64(StatusCancelled) {
		return 0, fmt.Errorf("invalid doc_status %d", n)
	}
	return DocStatus(n), nil
}

// MarshalJSON encodes the status as its integer.
func (s DocStatus) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Itoa(int(s))), nil
}

// UnmarshalJSON accepts only 0, 1 or 2.
func (s *DocStatus) UnmarshalJSON(b []byte) error {
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid doc_status %s", b)
	}
	parsed, err := ParseDocStatus(n)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
