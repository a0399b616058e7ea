// Package models provides the data model shared by the query, report,
// cache, and format packages.
package models

import "strconv"

// Record is one denormalized business record: a flat mapping from field
// name to scalar value (string, number, bool, or nil). Records are built
// once by the report assembler or taken verbatim from an upstream page,
// and are never mutated after construction; formatters that rename
// fields emit copies.
type Record map[string]interface{}

// Clone returns a shallow copy of the record. Values are scalars, so a
// shallow copy is a full copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Get returns the value for a field, or nil if absent.
func (r Record) Get(field string) interface{} {
	return r[field]
}

// StringField returns the field rendered as a string, or "" when absent
// or nil. Upstream IDs arrive as strings or JSON numbers depending on
// the endpoint, so joins go through this accessor.
func (r Record) StringField(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		// JSON numbers decode as float64; internal IDs are integral
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return ""
	}
}

// CloneAll deep-copies a record sequence. Cache entries hand out copies
// so no caller can mutate the stored payload.
func CloneAll(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}
