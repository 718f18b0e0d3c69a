package sensors

import (
	"encoding/json"
	"reflect"
	"sort"
)

// Record is an immutable set of named field values for one sensor. Mutation
// goes through With, which returns a new Record and leaves the receiver
// untouched.
type Record struct {
	values map[string]interface{}
}

// NewRecord builds a record from a copy of values.
func NewRecord(values map[string]interface{}) Record {
	cp := make(map[string]interface{}, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return Record{values: cp}
}

// With returns a copy of r where name is set to value.
func (r Record) With(name string, value interface{}) Record {
	cp := make(map[string]interface{}, len(r.values)+1)
	for k, v := range r.values {
		cp[k] = v
	}
	cp[name] = value
	return Record{values: cp}
}

// Get returns the raw value of a field.
func (r Record) Get(name string) (interface{}, bool) {
	v, ok := r.values[name]
	return v, ok
}

// Bool returns a boolean field, false if absent.
func (r Record) Bool(name string) bool {
	b, _ := r.values[name].(bool)
	return b
}

// Int returns an integer field, 0 if absent.
func (r Record) Int(name string) int {
	i, _ := r.values[name].(int)
	return i
}

// Float returns a float field, 0 if absent.
func (r Record) Float(name string) float64 {
	f, _ := r.values[name].(float64)
	return f
}

// String returns a string field, "" if absent.
func (r Record) String(name string) string {
	s, _ := r.values[name].(string)
	return s
}

// Values returns a copy of the field values.
func (r Record) Values() map[string]interface{} {
	return NewRecord(r.values).values
}

// Len returns the number of fields.
func (r Record) Len() int {
	return len(r.values)
}

// Equal reports whether both records hold the same fields and values.
func (r Record) Equal(o Record) bool {
	return reflect.DeepEqual(r.values, o.values)
}

// Diff returns the sorted names of fields whose values differ between r and
// o, including fields present in only one of them.
func (r Record) Diff(o Record) []string {
	var changed []string
	for k, v := range r.values {
		if ov, ok := o.values[k]; !ok || !reflect.DeepEqual(v, ov) {
			changed = append(changed, k)
		}
	}
	for k := range o.values {
		if _, ok := r.values[k]; !ok {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// MarshalJSON encodes the record as a flat JSON object.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.values)
}
