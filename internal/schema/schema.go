// Package schema derives a search-cluster index mapping (settings plus
// mappings.properties, with an optional join field) from a model and its
// children, per spec.md §3 and §4.C.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/ceyewan/tablesync/internal/logging"
	"github.com/ceyewan/tablesync/internal/model"
	"github.com/ceyewan/tablesync/internal/typemap"
)

// ErrPropertyConflict is raised when a parent and a child model declare
// an attribute of the same name with disagreeing field types.
var ErrPropertyConflict = errors.New("tablesync: property type conflict")

// Property is a single (attribute name, field type) pair, derived once
// at startup per spec.md §3.
type Property struct {
	Name string
	Type string
}

// analysisSettings is the fixed analysis configuration shared by every
// index: a whitespace tokenizer, lowercased, with an ASCII-folding filter
// that preserves the original token alongside the folded one.
var analysisSettings = map[string]any{
	"analysis": map[string]any{
		"analyzer": map[string]any{
			"default": map[string]any{
				"type":      "custom",
				"tokenizer": "whitespace",
				"filter":    []string{"lowercase", "asciifolding_preserve"},
			},
		},
		"filter": map[string]any{
			"asciifolding_preserve": map[string]any{
				"type":              "asciifolding",
				"preserve_original": true,
			},
		},
	},
}

// OwnProperties returns the properties derived directly from a model's
// own attributes, skipping any attribute whose type could not be mapped
// (logging a warning for each, per spec.md §4.B's rationale: mappings are
// advisory for best-effort indexing).
func OwnProperties(m model.Model, logger logging.Logger) []Property {
	if logger == nil {
		logger = logging.Nop()
	}
	attrs := m.Attributes()
	props := make([]Property, 0, len(attrs))
	for _, attr := range attrs {
		fieldType, ok, err := typemap.Map(attr.SourceType, attr.Tags[model.TagESType])
		if err != nil {
			logger.Warn("dropping attribute with invalid type override",
				logging.String("model", m.DocumentName()),
				logging.String("attribute", attr.Name),
				logging.Err(err))
			continue
		}
		if !ok {
			logger.Warn("dropping attribute with unmapped type",
				logging.String("model", m.DocumentName()),
				logging.String("attribute", attr.Name),
				logging.String("source_type", attr.SourceType))
			continue
		}
		props = append(props, Property{Name: attr.Name, Type: fieldType})
	}
	return props
}

// Build derives the full index mapping JSON for m: its own properties,
// merged with every child's properties, plus the type discriminator and
// an optional join field, per spec.md §3/§4.C. The result is
// byte-identical across runs for a fixed registry (spec.md §8's
// "Schema determinism" property).
func Build(reg *model.Registry, m model.Model, logger logging.Logger) ([]byte, error) {
	properties := map[string]any{}
	propertyTypes := map[string]string{}

	addProperty := func(owner string, p Property) error {
		if existing, seen := propertyTypes[p.Name]; seen {
			if existing != p.Type {
				return fmt.Errorf("%w: %q is %q on one model and %q on %q", ErrPropertyConflict, p.Name, existing, p.Type, owner)
			}
			return nil
		}
		propertyTypes[p.Name] = p.Type
		properties[p.Name] = map[string]any{"type": p.Type}
		return nil
	}

	for _, p := range OwnProperties(m, logger) {
		if err := addProperty(m.DocumentName(), p); err != nil {
			return nil, err
		}
	}

	children := reg.Children(m.DocumentName())
	for _, childName := range children {
		childModel, ok := reg.ByDocumentName(childName)
		if !ok {
			return nil, fmt.Errorf("tablesync: child %q not found in registry", childName)
		}
		for _, p := range OwnProperties(childModel, logger) {
			if err := addProperty(childName, p); err != nil {
				return nil, err
			}
		}
	}

	properties["type"] = map[string]any{"type": "keyword"}

	if len(children) > 0 {
		properties["join"] = map[string]any{
			"type":      "join",
			"relations": joinRelations(m.DocumentName(), children),
		}
	}

	doc := map[string]any{
		"settings": analysisSettings,
		"mappings": map[string]any{
			"properties": properties,
		},
	}

	return json.Marshal(doc)
}

// joinRelations returns the deterministic relations value for a join
// field: a bare string when there is exactly one child, a sorted list
// otherwise, per spec.md §3's "Join presence" invariant.
func joinRelations(docName string, children []string) any {
	sorted := append([]string(nil), children...)
	sort.Strings(sorted)
	if len(sorted) == 1 {
		return map[string]any{docName: sorted[0]}
	}
	return map[string]any{docName: sorted}
}
