package entity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"docforge/internal/core/apperror"
	appctx "docforge/internal/core/context"
	"docforge/internal/core/id"
	"docforge/internal/metadata"
	"docforge/internal/schema"
)

// Document is a runtime instance of a doctype. Its lifecycle state can only
// change through Submit and Cancel; both return a new Document and leave the
// receiver untouched.
type Document struct {
	Doctype string
	Values  Values
	status  DocStatus
}

// NewDocument builds a Draft document from a create payload. Any doc_status
// in raw is ignored. Absent fields are filled from their defaults (HEX() and
// NOW() generate a value, anything else is taken literally) and the ownership
// fields default to the user in ctx. The result is validated against c.
func NewDocument(ctx context.Context, c *schema.Compiled, raw map[string]any) (*Document, error) {
	now := time.Now().UTC()
	values := make(map[string]any, len(raw))
	for k, v := range raw {
		values[k] = v
	}
	delete(values, metadata.FieldDocStatus)

	applyDefaults(c, values, now)

	if userID := appctx.GetUserID(ctx); userID != "" {
		for _, name := range []string{metadata.FieldOwner, metadata.FieldCreatedBy, metadata.FieldUpdatedBy} {
			if _, ok := c.Field(name); ok && values[name] == nil {
				values[name] = userID
			}
		}
	}

	coerced, err := c.ValidateDocument(values)
	if err != nil {
		return nil, err
	}
	delete(coerced, metadata.FieldDocStatus)

	return &Document{Doctype: c.Doctype, Values: coerced, status: StatusDraft}, nil
}

// Restore rebuilds a document read back from storage.
func Restore(doctype string, status DocStatus, values Values) (*Document, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("restore %s: invalid doc_status %d", doctype, status)
	}
	v := values.Clone()
	delete(v, metadata.FieldDocStatus)
	if v == nil {
		v = Values{}
	}
	return &Document{Doctype: doctype, Values: v, status: status}, nil
}

// Status returns the lifecycle state.
func (d *Document) Status() DocStatus { return d.status }

// ID returns the document's id value.
func (d *Document) ID() string { return d.Values.GetString(metadata.FieldID) }

// Get returns a field value; doc_status is reported in its integer form.
func (d *Document) Get(field string) (any, bool) {
	if field == metadata.FieldDocStatus {
		return d.status.Int(), true
	}
	v, ok := d.Values[field]
	return v, ok
}

// Fields returns the values including doc_status, as stored or sent over the wire.
func (d *Document) Fields() map[string]any {
	out := make(map[string]any, len(d.Values)+1)
	for k, v := range d.Values {
		out[k] = v
	}
	out[metadata.FieldDocStatus] = d.status.Int()
	return out
}

func (d *Document) clone() *Document {
	return &Document{Doctype: d.Doctype, Values: d.Values.Clone(), status: d.status}
}

// MarshalJSON writes the flat field map with doc_status as 0, 1 or 2.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Fields())
}

// UnmarshalJSON reads a flat field map. doc_status must be 0, 1 or 2 when
// present and defaults to Draft.
func (d *Document) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	status := StatusDraft
	if v, ok := raw[metadata.FieldDocStatus]; ok && v != nil {
		s, err := ParseDocStatus(v)
		if err != nil {
			return err
		}
		status = s
	}
	delete(raw, metadata.FieldDocStatus)
	d.Values = raw
	d.status = status
	return nil
}

// Submit moves a Draft document to Submitted.
func (d *Document) Submit() (*Document, error) {
	return d.Apply(ActionSubmit)
}

// Cancel moves a Submitted document to Cancelled.
func (d *Document) Cancel() (*Document, error) {
	return d.Apply(ActionCancel)
}

// Apply performs a lifecycle action. On ILLEGAL_TRANSITION the receiver is
// unchanged and no document is returned.
func (d *Document) Apply(action Action) (*Document, error) {
	rule, ok := transitions[action]
	if !ok {
		return nil, apperror.NewIllegalTransition(string(action), d.status.String()).
			WithDetail("reason", "unknown action")
	}
	if d.status != rule.from {
		return nil, apperror.NewIllegalTransition(string(action), d.status.String()).
			WithDetail("requested", rule.to.String())
	}
	next := d.clone()
	next.status = rule.to
	return next, nil
}

// CheckUpdate reports whether changes may be applied to d. Drafts accept any
// change. Submitted and cancelled documents accept changes only to fields
// flagged allow_on_submit; standard fields are system-managed and skipped,
// as are values equal to the current ones.
func (d *Document) CheckUpdate(c *schema.Compiled, changes map[string]any) error {
	if d.status == StatusDraft {
		return nil
	}
	var frozen []string
	for name, v := range changes {
		f, ok := c.Field(name)
		if !ok || f.Standard || f.Structural() || f.Config.AllowOnSubmit {
			continue
		}
		if cur, ok := d.Values[name]; ok && reflect.DeepEqual(cur, v) {
			continue
		}
		frozen = append(frozen, name)
	}
	if len(frozen) == 0 {
		return nil
	}
	sort.Strings(frozen)
	return apperror.NewDocumentFrozen(d.status.String(), frozen).
		WithDetail("doctype", d.Doctype)
}

// WithChanges returns a copy of d with changes merged in. doc_status cannot
// be set this way.
func (d *Document) WithChanges(changes map[string]any) *Document {
	next := d.clone()
	for k, v := range changes {
		if k == metadata.FieldDocStatus {
			continue
		}
		next.Values[k] = v
	}
	return next
}

func applyDefaults(c *schema.Compiled, values map[string]any, now time.Time) {
	for _, f := range c.Fields {
		name := f.Name()
		if f.Structural() || name == metadata.FieldDocStatus {
			continue
		}
		if f.Config.Type == metadata.TypeReferenceTable {
			if rows, ok := rowsOf(values[name]); ok {
				for i, row := range rows {
					if _, ok := row[metadata.FieldIdx]; !ok {
						row[metadata.FieldIdx] = int64(i)
					}
					applyDefaults(f.Child, row, now)
				}
				values[name] = rows
			}
			continue
		}
		if values[name] != nil || f.Config.Default == nil {
			continue
		}
		values[name] = resolveDefault(f.Config, now)
	}
}

// rowsOf copies table rows so defaults never write into the caller's maps.
func rowsOf(v any) ([]map[string]any, bool) {
	var src []map[string]any
	switch t := v.(type) {
	case []map[string]any:
		src = t
	case []any:
		src = make([]map[string]any, 0, len(t))
		for _, r := range t {
			m, ok := r.(map[string]any)
			if !ok {
				return nil, false
			}
			src = append(src, m)
		}
	default:
		return nil, false
	}
	out := make([]map[string]any, len(src))
	for i, r := range src {
		cp := make(map[string]any, len(r)+1)
		for k, v := range r {
			cp[k] = v
		}
		out[i] = cp
	}
	return out, true
}

func resolveDefault(f metadata.FieldConfig, now time.Time) any {
	s, ok := f.Default.(string)
	if !ok {
		return f.Default
	}
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case metadata.DefaultHex:
		return id.NewHex()
	case metadata.DefaultNow:
		switch f.Type {
		case metadata.TypeDate:
			return now.Format(time.DateOnly)
		case metadata.TypeTime:
			return now.Format(time.TimeOnly)
		}
		return now.Format(time.RFC3339Nano)
	}
	return s
}
