// Package typemap implements the pure mapping from primary-store
// attribute types (plus optional es_type tag overrides) to
// search-cluster field types, per spec.md §4.B.
package typemap

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidFieldType is returned when an es_type tag override names a
// field type outside the closed set the search cluster supports.
var ErrInvalidFieldType = errors.New("tablesync: invalid field type override")

// validOverrides is the closed set of field types an es_type tag may name.
var validOverrides = map[string]bool{
	"text": true, "keyword": true, "long": true, "integer": true,
	"short": true, "byte": true, "double": true, "float": true,
	"half_float": true, "scaled_float": true, "boolean": true, "date": true,
	"binary": true, "object": true, "ip": true, "completion": true,
	"geo_point": true, "geo_shape": true,
}

// sourceTypeMap covers the scalar source type names spec.md §4.B lists,
// plus the bare (non bit-width-qualified) aliases primary stores commonly
// use for the same underlying types.
var sourceTypeMap = map[string]string{
	"bool":      "boolean",
	"boolean":   "boolean",
	"int8":      "byte",
	"byte":      "byte",
	"int16":     "short",
	"short":     "short",
	"int32":     "integer",
	"int":       "integer",
	"integer":   "integer",
	"int64":     "long",
	"long":      "long",
	"float32":   "float",
	"float":     "float",
	"float64":   "double",
	"double":    "double",
	"string":    "text",
	"text":      "text",
	"time":      "date",
	"timestamp": "date",
	"date":      "date",
	"datetime":  "date",
}

// objectLikeSourceTypes are source type names that always map to object,
// regardless of how the primary store spells "arbitrary JSON blob".
var objectLikeSourceTypes = map[string]bool{
	"json": true, "object": true, "map": true, "hash": true, "record": true,
}

// Map implements spec.md §4.B's ordered rules: an explicit tagOverride
// wins (validated against the closed set), otherwise the source type
// name is mapped directly, homogeneous collections are stripped and
// recursed on their element type, and anything unrecognized reports
// ok=false so the caller can omit the attribute.
func Map(sourceType, tagOverride string) (fieldType string, ok bool, err error) {
	if tagOverride != "" {
		if !validOverrides[tagOverride] {
			return "", false, fmt.Errorf("%w: %q", ErrInvalidFieldType, tagOverride)
		}
		return tagOverride, true, nil
	}

	normalized := strings.ToLower(strings.TrimSpace(sourceType))

	if ft, ok := sourceTypeMap[normalized]; ok {
		return ft, true, nil
	}
	if objectLikeSourceTypes[normalized] {
		return "object", true, nil
	}
	if isObjectLikeParametrized(normalized) {
		return "object", true, nil
	}

	if elem, isCollection := stripCollection(normalized); isCollection {
		return Map(elem, "")
	}

	return "", false, nil
}

// stripCollection recognizes array<T> and set<T> and returns T.
func stripCollection(normalized string) (elem string, ok bool) {
	for _, prefix := range []string{"array<", "set<"} {
		if strings.HasPrefix(normalized, prefix) && strings.HasSuffix(normalized, ">") {
			return normalized[len(prefix) : len(normalized)-1], true
		}
	}
	return "", false
}

// isObjectLikeParametrized recognizes map<K,V>, hash<K,V> and record<...>:
// key-value containers, unlike array<T>/set<T>, carry two type parameters
// rather than one homogeneous element type, so they map to object outright
// instead of recursing on an element type.
func isObjectLikeParametrized(normalized string) bool {
	for prefix := range objectLikeSourceTypes {
		if strings.HasPrefix(normalized, prefix+"<") && strings.HasSuffix(normalized, ">") {
			return true
		}
	}
	return false
}
