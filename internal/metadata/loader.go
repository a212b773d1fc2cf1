package metadata

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

var definitionExts = []string{".yaml", ".yml", ".json"}

// ParseDefinition decodes and validates one doctype definition. JSON is
// accepted as a subset of YAML.
func ParseDefinition(data []byte) (Doctype, error) {
	var d Doctype
	if err := yaml.Unmarshal(data, &d); err != nil {
		return Doctype{}, err
	}
	if err := d.Validate(); err != nil {
		return Doctype{}, err
	}
	return d, nil
}

// LoadFile reads one definition file.
func LoadFile(path string) (Doctype, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Doctype{}, err
	}
	d, err := ParseDefinition(data)
	if err != nil {
		return Doctype{}, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// LoadDir reads every definition file in dir (non-recursive), sorted by
// doctype name.
func LoadDir(dir string) ([]Doctype, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []Doctype
	for _, e := range entries {
		if e.IsDir() || !isDefinitionFile(e.Name()) {
			continue
		}
		d, err := LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func isDefinitionFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range definitionExts {
		if ext == e {
			return true
		}
	}
	return false
}

// DirLookup resolves doctypes from definition files named after the doctype's
// slug ("Invoice Item" -> invoice_item.yaml). Files are read on every call so
// edits are picked up without a restart.
type DirLookup struct {
	Dir string
}

// Resolve implements Lookup.
func (l DirLookup) Resolve(ctx context.Context, name string) (Doctype, error) {
	if err := ctx.Err(); err != nil {
		return Doctype{}, err
	}
	slug := Slug(name)
	for _, ext := range definitionExts {
		path := filepath.Join(l.Dir, slug+ext)
		d, err := LoadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Doctype{}, err
		}
		if d.Name != name {
			return Doctype{}, fmt.Errorf("%s declares doctype %q, want %q", path, d.Name, name)
		}
		return d, nil
	}
	return Doctype{}, fmt.Errorf("%w: %s", ErrDoctypeNotFound, name)
}

// Slug converts a doctype name to snake case: "Invoice Item" -> "invoice_item",
// "InvoiceItem" -> "invoice_item".
func Slug(name string) string {
	var b strings.Builder
	prevLower := false
	pendingSep := false
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			pendingSep = b.Len() > 0
			prevLower = false
			continue
		}
		if unicode.IsUpper(r) && prevLower {
			pendingSep = true
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(unicode.ToLower(r))
		prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
	}
	return b.String()
}
