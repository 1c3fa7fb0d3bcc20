package macros

import (
	"sort"

	"github.com/ogulcanaydogan/spec-cpu-harness/pkg/params"
)

// Kind tags a macro value.
type Kind int

const (
	// Absent means the macro is not emitted at all.
	Absent Kind = iota
	// True is a flag macro emitted without a value.
	True
	// Text is a macro with a string value.
	Text
)

// Value is one macro value.
type Value struct {
	Kind Kind
	Text string
}

// Flag returns a boolean-true value.
func Flag() Value {
	return Value{Kind: True}
}

// String returns a text value.
func String(v string) Value {
	return Value{Kind: Text, Text: v}
}

// Truthy reports whether the value counts as enabled.
func (v Value) Truthy() bool {
	switch v.Kind {
	case True:
		return true
	case Text:
		return params.Truthy(v.Text)
	}
	return false
}

// Set maps macro names to values. Absent values are never stored.
type Set struct {
	values map[string]Value
}

// NewSet returns an empty set.
func NewSet() Set {
	return Set{values: make(map[string]Value)}
}

// Put stores v under name; an Absent value removes name.
func (s Set) Put(name string, v Value) {
	if v.Kind == Absent {
		delete(s.values, name)
		return
	}
	s.values[name] = v
}

// PutBool stores a flag when on and removes name otherwise.
func (s Set) PutBool(name string, on bool) {
	if on {
		s.Put(name, Flag())
		return
	}
	s.Put(name, Value{})
}

// Get returns the value for name; missing names are Absent.
func (s Set) Get(name string) Value {
	return s.values[name]
}

// Has reports whether name is present.
func (s Set) Has(name string) bool {
	_, ok := s.values[name]
	return ok
}

// Delete removes name.
func (s Set) Delete(name string) {
	delete(s.values, name)
}

// Len returns the number of macros.
func (s Set) Len() int {
	return len(s.values)
}

// Keys returns macro names in sorted order.
func (s Set) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := Set{values: make(map[string]Value, len(s.values))}
	for k, v := range s.values {
		out.values[k] = v
	}
	return out
}
