package urlmodel

import "strings"

// HeaderField is one name/value pair, emitted in insertion order.
type HeaderField struct {
	Name  string
	Value string
}

// Header is an ordered list of header fields with case-insensitive
// lookup, used for request and response headers alike. Emission order is
// insertion order, which a map-backed representation can't guarantee.
type Header struct {
	fields []HeaderField
}

// NewHeader returns an empty Header.
func NewHeader() Header { return Header{} }

// Add appends a field, preserving any existing fields of the same name.
func (h *Header) Add(name, value string) {
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
}

// Set removes any existing fields with the same name (case-insensitive) and
// inserts value as the sole field for name.
func (h *Header) Set(name, value string) {
	h.Del(name)
	h.Add(name, value)
}

// Del removes all fields matching name (case-insensitive).
func (h *Header) Del(name string) {
	out := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Get returns the first value for name, case-insensitive, or "" if absent.
func (h Header) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

// Values returns every value for name, case-insensitive, in insertion order.
func (h Header) Values(name string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Has reports whether any field matches name, case-insensitive.
func (h Header) Has(name string) bool {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

// Each calls fn for every field in insertion order.
func (h Header) Each(fn func(name, value string)) {
	for _, f := range h.fields {
		fn(f.Name, f.Value)
	}
}

// Len returns the number of fields.
func (h Header) Len() int { return len(h.fields) }

// Clone returns an independent copy.
func (h Header) Clone() Header {
	out := Header{fields: make([]HeaderField, len(h.fields))}
	copy(out.fields, h.fields)
	return out
}

// ToMap collapses Header into a map[string][]string, for callers (such as
// httperr.StatusCodeException) that need the stdlib-shaped representation.
// Field order within a name is preserved; the map itself has none.
func (h Header) ToMap() map[string][]string {
	out := make(map[string][]string, len(h.fields))
	for _, f := range h.fields {
		out[f.Name] = append(out[f.Name], f.Value)
	}
	return out
}

// HeaderFromMap builds a Header from a map, useful for tests and simple callers;
// iteration order over values within a key is preserved, key order is not
// guaranteed (maps have none), which is acceptable for headers that are
// looked up by name rather than depended on for cross-name ordering.
func HeaderFromMap(m map[string][]string) Header {
	var h Header
	for name, values := range m {
		for _, v := range values {
			h.Add(name, v)
		}
	}
	return h
}
