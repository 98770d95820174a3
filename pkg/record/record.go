// Package record normalizes raw screener hits into flat records.
package record

import (
	"sort"
)

// IDColumn is the attribute name the identifier is exposed under in tables
// and exports.
const IDColumn = "id"

// SourceIDColumn holds a hit's own "id" field when the identifier was taken
// from another field, so the raw value is not shadowed by IDColumn.
const SourceIDColumn = "source_id"

// Record is one normalized screener hit. It is immutable after Adapt returns it.
type Record struct {
	id    string
	attrs map[string]any
	names []string
}

// ID returns the stable identifier of the instrument.
func (r Record) ID() string {
	return r.id
}

// Get returns the named attribute. Numeric attributes are decimal.Decimal
// values; nested objects are flattened with dotted names.
func (r Record) Get(name string) (any, bool) {
	v, ok := r.attrs[name]
	return v, ok
}

// Names returns the attribute names in sorted order, excluding the identifier.
func (r Record) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Len returns the number of attributes, excluding the identifier.
func (r Record) Len() int {
	return len(r.names)
}

// AsMap returns a copy of all attributes plus the identifier under IDColumn.
func (r Record) AsMap() map[string]any {
	m := make(map[string]any, len(r.attrs)+1)
	for k, v := range r.attrs {
		m[k] = v
	}
	m[IDColumn] = r.id
	return m
}

func newRecord(id string, attrs map[string]any) Record {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)
	return Record{id: id, attrs: attrs, names: names}
}
