// Package format projects canonical record sequences into the named
// wire shapes callers ask for. Formatting is pure: no shape mutates
// record values, only envelope structure and field-name aliasing differ.
package format

import (
	"time"

	"github.com/openelt/nsgateway/pkg/errors"
	"github.com/openelt/nsgateway/pkg/models"
)

// Type identifies one output shape.
type Type string

const (
	// TypeFull wraps records in a metadata envelope
	TypeFull Type = "full"
	// TypeDatabase is the bare record sequence for direct insertion
	TypeDatabase Type = "database"
	// TypeAirbyte is the envelope the Airbyte integration parses
	TypeAirbyte Type = "airbyte"
	// TypeFlat is a minimal entity/count/data envelope
	TypeFlat Type = "flat"
	// TypeCustomLocale applies a field-name translation dictionary
	TypeCustomLocale Type = "custom-locale"
)

// Spec selects an output shape plus shape-specific parameters.
type Spec struct {
	Type Type
	// Locale names the translation dictionary for TypeCustomLocale
	Locale string
}

// Parse validates a format name from the inbound layer. An empty name
// defaults to the full shape.
func Parse(name, locale string) (Spec, error) {
	switch Type(name) {
	case "":
		return Spec{Type: TypeFull}, nil
	case TypeFull, TypeDatabase, TypeAirbyte, TypeFlat:
		return Spec{Type: Type(name)}, nil
	case TypeCustomLocale:
		if locale == "" {
			locale = DefaultLocale
		}
		return Spec{Type: TypeCustomLocale, Locale: locale}, nil
	default:
		return Spec{}, errors.New(errors.ErrorTypeInvalidRequest, "unknown format type: "+name)
	}
}

// Meta is the pagination and provenance metadata echoed by envelope
// shapes.
type Meta struct {
	Entity      string
	Total       int
	HasMore     bool
	Offset      int
	Limit       int
	CacheHit    bool
	GeneratedAt time.Time
}

// Formatter renders canonical records into wire shapes. It is stateless
// apart from its locale dictionaries and never returns an error at
// render time; unknown shapes and locales are rejected when the Spec
// is built.
type Formatter struct {
	locales map[string]Dictionary
}

// NewFormatter creates a Formatter with the built-in locale dictionaries.
func NewFormatter() (*Formatter, error) {
	f := &Formatter{locales: make(map[string]Dictionary)}
	for name, dict := range builtinLocales() {
		if err := dict.Validate(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid locale dictionary "+name)
		}
		f.locales[name] = dict
	}
	return f, nil
}

// HasLocale reports whether a dictionary is registered for the name.
func (f *Formatter) HasLocale(name string) bool {
	_, ok := f.locales[name]
	return ok
}

// Render projects records into the shape named by spec. The input
// sequence is never mutated.
func (f *Formatter) Render(records []models.Record, spec Spec, meta Meta) interface{} {
	if records == nil {
		records = []models.Record{}
	}

	switch spec.Type {
	case TypeDatabase:
		return records

	case TypeAirbyte:
		var nextOffset interface{}
		if meta.HasMore {
			nextOffset = meta.Offset + meta.Limit
		}
		return map[string]interface{}{
			"records": records,
			"pagination": map[string]interface{}{
				"has_more":    meta.HasMore,
				"count":       len(records),
				"next_offset": nextOffset,
			},
		}

	case TypeFlat:
		return map[string]interface{}{
			"entity": meta.Entity,
			"count":  len(records),
			"data":   records,
		}

	case TypeCustomLocale:
		dict := f.locales[spec.Locale]
		translated := make([]models.Record, len(records))
		for i, r := range records {
			translated[i] = dict.Apply(r)
		}
		return map[string]interface{}{
			"entity": meta.Entity,
			"count":  len(translated),
			"data":   translated,
		}

	default: // TypeFull
		return map[string]interface{}{
			"entity":       meta.Entity,
			"count":        len(records),
			"items":        records,
			"hasMore":      meta.HasMore,
			"offset":       meta.Offset,
			"limit":        meta.Limit,
			"totalResults": meta.Total,
			"cached":       meta.CacheHit,
			"timestamp":    meta.GeneratedAt.UTC().Format(time.RFC3339),
		}
	}
}
