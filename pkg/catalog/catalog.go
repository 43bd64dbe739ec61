// Package catalog holds the versioned profile field schema. The schema is
// data, not code: the extractor and question generator read it at runtime,
// so adding a field or rewording a question is a YAML change only.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalogYAML []byte

// FieldType enumerates the value shapes a field can take.
type FieldType string

const (
	FieldInt  FieldType = "int"
	FieldEnum FieldType = "enum"
	FieldText FieldType = "text"
	FieldList FieldType = "list"
)

// Field describes one profile slot: how to validate it, how to ask for it,
// and the phrase bank the semantic tier matches against.
type Field struct {
	Name           string              `yaml:"name"`
	Type           FieldType           `yaml:"type"`
	Required       bool                `yaml:"required"`
	Priority       int                 `yaml:"priority"`
	Order          int                 `yaml:"order"`
	Min            int                 `yaml:"min"`
	Max            int                 `yaml:"max"`
	Values         []string            `yaml:"values"`
	Question       string              `yaml:"question"`
	Clarifications []string            `yaml:"clarifications"`
	Synonyms       map[string][]string `yaml:"synonyms"`
	SkipIfAgeOver  int                 `yaml:"skip_if_age_over"`
}

// NegativeValue returns the value a bare "no"-style answer maps to for this
// field, if any. Fields with a "none" phrase bank take "none"; enums that
// allow "no" take "no".
func (f *Field) NegativeValue() (string, bool) {
	if _, ok := f.Synonyms["none"]; ok {
		return "none", true
	}
	for _, v := range f.Values {
		if v == "no" {
			return "no", true
		}
	}
	return "", false
}

// AffirmativeValue returns the value a bare "yes"-style answer maps to.
func (f *Field) AffirmativeValue() (string, bool) {
	for _, v := range f.Values {
		if v == "yes" {
			return "yes", true
		}
	}
	if _, ok := f.Synonyms["yes"]; ok {
		return "yes", true
	}
	return "", false
}

// Catalog is the versioned field schema plus the thresholds the intake
// pipeline shares.
type Catalog struct {
	Version             int     `yaml:"version"`
	ResolutionThreshold float64 `yaml:"resolution_threshold"`
	Epsilon             float64 `yaml:"epsilon"`
	Fields              []Field `yaml:"fields"`

	byName map[string]*Field
}

// ValidationError reports a candidate value that fails the field's schema.
// It is handled at the extraction boundary; the slot stays unresolved.
type ValidationError struct {
	Field string
	Value string
	Rule  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %q: value %q fails %s", e.Field, e.Value, e.Rule)
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return parse(defaultCatalogYAML)
}

// Load reads a catalog from path, falling back to the embedded default when
// path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading field catalog: %w", err)
	}
	return parse(raw)
}

func parse(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parsing field catalog: %w", err)
	}
	if c.ResolutionThreshold == 0 {
		c.ResolutionThreshold = 0.7
	}
	if c.Epsilon == 0 {
		c.Epsilon = 0.05
	}
	c.byName = make(map[string]*Field, len(c.Fields))
	for i := range c.Fields {
		f := &c.Fields[i]
		if f.Name == "" {
			return nil, fmt.Errorf("field catalog entry %d has no name", i)
		}
		if _, dup := c.byName[f.Name]; dup {
			return nil, fmt.Errorf("duplicate field %q in catalog", f.Name)
		}
		c.byName[f.Name] = f
	}
	return &c, nil
}

// Field looks up a field by name.
func (c *Catalog) Field(name string) (*Field, bool) {
	f, ok := c.byName[name]
	return f, ok
}

// Required returns the required fields sorted by priority then order.
func (c *Catalog) Required() []Field {
	var out []Field
	for _, f := range c.Fields {
		if f.Required {
			out = append(out, f)
		}
	}
	sortFields(out)
	return out
}

// All returns every field sorted by priority then order.
func (c *Catalog) All() []Field {
	out := make([]Field, len(c.Fields))
	copy(out, c.Fields)
	sortFields(out)
	return out
}

func sortFields(fields []Field) {
	for i := 1; i < len(fields); i++ {
		for j := i; j > 0; j-- {
			a, b := fields[j-1], fields[j]
			if a.Priority < b.Priority || (a.Priority == b.Priority && a.Order <= b.Order) {
				break
			}
			fields[j-1], fields[j] = b, a
		}
	}
}

// Validate checks a candidate value against the field's constraints and
// returns the normalized value.
func (c *Catalog) Validate(fieldName, value string) (string, error) {
	f, ok := c.byName[fieldName]
	if !ok {
		return "", &ValidationError{Field: fieldName, Value: value, Rule: "unknown field"}
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", &ValidationError{Field: fieldName, Value: value, Rule: "empty value"}
	}

	switch f.Type {
	case FieldInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return "", &ValidationError{Field: fieldName, Value: value, Rule: "integer"}
		}
		if f.Max > f.Min && (n < f.Min || n > f.Max) {
			return "", &ValidationError{Field: fieldName, Value: value, Rule: fmt.Sprintf("range [%d,%d]", f.Min, f.Max)}
		}
		return strconv.Itoa(n), nil
	case FieldEnum:
		lower := strings.ToLower(value)
		for _, allowed := range f.Values {
			if lower == allowed {
				return allowed, nil
			}
		}
		return "", &ValidationError{Field: fieldName, Value: value, Rule: "enum " + strings.Join(f.Values, "|")}
	case FieldList, FieldText, "":
		return value, nil
	default:
		return "", &ValidationError{Field: fieldName, Value: value, Rule: "unknown type " + string(f.Type)}
	}
}
