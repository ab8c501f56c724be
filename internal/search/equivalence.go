package search

import (
	"reflect"
	"sort"
)

// Equivalent implements spec.md §4.D's mapping equivalence relation,
// used by the reconciler to decide whether a live index mapping still
// matches the derived schema. live and derived are each a decoded
// "mappings" object (with a "properties" key). Equivalent returns false
// if either side has no properties at all.
func Equivalent(live, derived map[string]any) bool {
	liveProps, ok := propertiesOf(live)
	if !ok {
		return false
	}
	derivedProps, ok := propertiesOf(derived)
	if !ok {
		return false
	}

	if !sameKeySet(liveProps, derivedProps) {
		return false
	}

	for key, derivedVal := range derivedProps {
		liveVal := liveProps[key]
		if key == "join" {
			if !joinEquivalent(liveVal, derivedVal) {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(normalize(liveVal), normalize(derivedVal)) {
			return false
		}
	}
	return true
}

func propertiesOf(mapping map[string]any) (map[string]any, bool) {
	if mapping == nil {
		return nil, false
	}
	raw, ok := mapping["properties"]
	if !ok {
		return nil, false
	}
	props, ok := raw.(map[string]any)
	return props, ok
}

func sameKeySet(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// joinEquivalent compares two join property definitions: same relation
// keys, and per key, the same set of child names regardless of whether
// either side stored a single child as a bare string or a 1-element list.
func joinEquivalent(live, derived any) bool {
	liveRel, ok := relationsOf(live)
	if !ok {
		return false
	}
	derivedRel, ok := relationsOf(derived)
	if !ok {
		return false
	}
	if !sameKeySet(liveRel, derivedRel) {
		return false
	}
	for k, dv := range derivedRel {
		if !sameStringSet(toStringList(liveRel[k]), toStringList(dv)) {
			return false
		}
	}
	return true
}

func relationsOf(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	raw, ok := m["relations"]
	if !ok {
		return nil, false
	}
	rel, ok := raw.(map[string]any)
	return rel, ok
}

func toStringList(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	default:
		return nil
	}
}

func sameStringSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = append([]string(nil), a...), append([]string(nil), b...)
	sort.Strings(a)
	sort.Strings(b)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// normalize round-trips through sorted-key recursion so structurally
// equal maps built with different key insertion orders compare equal.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
