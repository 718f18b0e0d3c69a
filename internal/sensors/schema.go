package sensors

import (
	"errors"
	"fmt"

	"github.com/iancoleman/strcase"
)

var (
	// ErrUnknownField is returned when a field name is not declared by the schema
	ErrUnknownField = errors.New("unknown field")

	// ErrReadOnlyField is returned for constant fields and the injected timestamp
	ErrReadOnlyField = errors.New("field is read-only")

	// ErrInvalidValue is returned when a value has the wrong type or is not
	// one of the field's options
	ErrInvalidValue = errors.New("invalid value")
)

// Reserved field names.
const (
	EnabledField   = "enabled"
	TimestampField = "timestamp"
)

// Kind is the value domain of a field.
type Kind string

const (
	KindBool   Kind = "bool"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindString Kind = "string"
)

// Range is an inclusive numeric bound. Values outside it are clamped.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Field describes one named value of a sensor record.
type Field struct {
	Name     string        `json:"name"`
	Kind     Kind          `json:"kind"`
	Default  interface{}   `json:"default"`
	Range    *Range        `json:"range,omitempty"`
	Step     float64       `json:"step,omitempty"`     // UI hint only
	Options  []interface{} `json:"options,omitempty"`  // allowed values, empty = any
	Unit     string        `json:"unit,omitempty"`
	Constant bool          `json:"constant,omitempty"` // fixed identity value, never mutated
}

// Schema describes one simulated sensor: its record fields, the fixed topic
// it publishes to, and whether an "enabled" flag gates publishing.
type Schema struct {
	Name   string  `json:"name"`
	Title  string  `json:"title"`
	Topic  string  `json:"topic"`
	Gated  bool    `json:"gated"`
	Fields []Field `json:"fields"`
}

// Field looks up a declared field. Names are accepted as declared
// (camelCase) or in snake_case.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	camel := strcase.ToLowerCamel(name)
	for _, f := range s.Fields {
		if f.Name == camel {
			return f, true
		}
	}
	return Field{}, false
}

// Defaults builds the initial record from the declared defaults.
func (s *Schema) Defaults() Record {
	values := make(map[string]interface{}, len(s.Fields))
	for _, f := range s.Fields {
		values[f.Name] = f.Default
	}
	return Record{values: values}
}

// Coerce validates value against the named field and returns the canonical
// field name together with the value converted to the field's kind. Numeric
// values outside the field's range are clamped into it.
func (s *Schema) Coerce(name string, value interface{}) (string, interface{}, error) {
	if name == TimestampField {
		return "", nil, fmt.Errorf("%s: %w", name, ErrReadOnlyField)
	}

	f, ok := s.Field(name)
	if !ok {
		return "", nil, fmt.Errorf("%s has no field %q: %w", s.Name, name, ErrUnknownField)
	}
	if f.Constant {
		return "", nil, fmt.Errorf("%s.%s: %w", s.Name, f.Name, ErrReadOnlyField)
	}

	v, err := coerceValue(f, value)
	if err != nil {
		return "", nil, fmt.Errorf("%s.%s: %w", s.Name, f.Name, err)
	}
	return f.Name, v, nil
}

// validate checks that the schema is internally consistent. Used when the
// catalog is built.
func (s *Schema) validate() error {
	if s.Name == "" || s.Topic == "" {
		return fmt.Errorf("schema needs a name and a topic")
	}
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if seen[f.Name] {
			return fmt.Errorf("%s: duplicate field %q", s.Name, f.Name)
		}
		seen[f.Name] = true
		if f.Name == TimestampField {
			return fmt.Errorf("%s: %q is reserved", s.Name, TimestampField)
		}
		if f.Constant {
			continue
		}
		if _, err := coerceValue(f, f.Default); err != nil {
			return fmt.Errorf("%s.%s default: %w", s.Name, f.Name, err)
		}
	}
	if _, ok := s.Field(EnabledField); ok != s.Gated {
		return fmt.Errorf("%s: gated=%v but enabled field present=%v", s.Name, s.Gated, ok)
	}
	return nil
}
