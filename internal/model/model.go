// Package model is the explicit model metadata registry described in
// spec.md §3 and §9: a process-lifetime, immutable map from document name
// to its attributes and parent relations, built once at startup from a
// slice of Model implementations rather than via reflection over an ORM.
package model

import (
	"errors"
	"fmt"
)

// Tag names of interest on an Attribute, per spec.md §3.
const (
	TagESType = "es_type"
	TagParent = "parent"
)

// Attribute describes one field of a Model: its source-store type name
// and any tags (es_type override, parent routing marker).
type Attribute struct {
	Name       string
	SourceType string
	Tags       map[string]string
}

// Model is the contract every managed table implements once, replacing
// compile-time reflection over an ORM (spec.md §9).
type Model interface {
	// DocumentName returns the last path segment of the model's fully
	// qualified name: the polymorphism discriminator and join-relation name.
	DocumentName() string
	// TableName returns the physical table name in the primary store,
	// which doubles as the index name in the search cluster.
	TableName() string
	// Attributes returns the ordered attribute list.
	Attributes() []Attribute
}

// Parent describes a child's relation to a parent document: the parent's
// document name, its index, and the attribute on the child carrying the
// parent's id.
type Parent struct {
	Name        string
	Index       string
	RoutingAttr string
}

var (
	ErrDuplicateDocumentName = errors.New("tablesync: duplicate document name")
	ErrUnknownParent         = errors.New("tablesync: unknown parent document")
	ErrCyclicParents         = errors.New("tablesync: cyclic parent relations")
)

// Registry is the validated, immutable set of managed models.
type Registry struct {
	models     []Model
	byDocName  map[string]Model
	byTable    map[string]Model
	parents    map[string][]Parent // docName -> its parents
	children   map[string][]string // docName -> document names of children
}

// NewRegistry validates and builds a Registry from the given models. It
// enforces the invariants in spec.md §3: document names are globally
// unique, every parent tag names a managed model, and the parent relation
// graph is a DAG.
func NewRegistry(models []Model) (*Registry, error) {
	r := &Registry{
		byDocName: make(map[string]Model, len(models)),
		byTable:   make(map[string]Model, len(models)),
		parents:   make(map[string][]Parent, len(models)),
		children:  make(map[string][]string, len(models)),
	}

	for _, m := range models {
		name := m.DocumentName()
		if _, exists := r.byDocName[name]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateDocumentName, name)
		}
		r.byDocName[name] = m
		r.byTable[m.TableName()] = m
		r.models = append(r.models, m)
	}

	for _, m := range models {
		name := m.DocumentName()
		for _, attr := range m.Attributes() {
			parentName, ok := attr.Tags[TagParent]
			if !ok {
				continue
			}
			parentModel, ok := r.byDocName[parentName]
			if !ok {
				return nil, fmt.Errorf("%w: %q (referenced by %q.%s)", ErrUnknownParent, parentName, name, attr.Name)
			}
			r.parents[name] = append(r.parents[name], Parent{
				Name:        parentName,
				Index:       parentModel.TableName(),
				RoutingAttr: attr.Name,
			})
			r.children[parentName] = append(r.children[parentName], name)
		}
	}

	if cycle := r.findCycle(); cycle != "" {
		return nil, fmt.Errorf("%w: involving %q", ErrCyclicParents, cycle)
	}

	return r, nil
}

// findCycle runs a DFS over the child->parent edges and returns the name
// of a model on a cycle, or "" if the graph is a DAG.
func (r *Registry) findCycle() string {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make(map[string]int, len(r.models))

	var visit func(name string) bool
	visit = func(name string) bool {
		switch state[name] {
		case visiting:
			return true
		case done:
			return false
		}
		state[name] = visiting
		for _, p := range r.parents[name] {
			if visit(p.Name) {
				return true
			}
		}
		state[name] = done
		return false
	}

	for _, m := range r.models {
		if visit(m.DocumentName()) {
			return m.DocumentName()
		}
	}
	return ""
}

// Models returns all managed models, in registration order.
func (r *Registry) Models() []Model { return r.models }

// ByDocumentName looks up a model by its document name.
func (r *Registry) ByDocumentName(name string) (Model, bool) {
	m, ok := r.byDocName[name]
	return m, ok
}

// ByTableName looks up a model by its table/index name.
func (r *Registry) ByTableName(name string) (Model, bool) {
	m, ok := r.byTable[name]
	return m, ok
}

// Parents returns the parent descriptors for the model with the given
// document name, or nil if it has none.
func (r *Registry) Parents(docName string) []Parent {
	return r.parents[docName]
}

// Children returns the document names of the models that declare docName
// as their parent, or nil if it has no children.
func (r *Registry) Children(docName string) []string {
	return r.children[docName]
}
