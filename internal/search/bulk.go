package search

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/ceyewan/tablesync/internal/model"
)

// Op is a bulk action's operation kind.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Action is one bulk header+source pair targeting a single index.
type Action struct {
	Op      Op
	Index   string
	ID      string
	Routing string
	Source  map[string]any // nil for OpDelete
}

// lines renders the header line and, except for delete, the source line.
func (a Action) lines() ([][]byte, error) {
	header := map[Op]map[string]any{
		a.Op: {
			"_index":  a.Index,
			"_id":     a.ID,
			"routing": a.Routing,
		},
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("encoding bulk header: %w", err)
	}

	if a.Op == OpDelete {
		return [][]byte{headerBytes}, nil
	}

	sourceBytes, err := json.Marshal(a.Source)
	if err != nil {
		return nil, fmt.Errorf("encoding bulk source: %w", err)
	}
	return [][]byte{headerBytes, sourceBytes}, nil
}

// BuildActions implements spec.md §4.D's fan-out write algorithm: one
// action for the document's own index, plus one per parent whose
// routing attribute holds a non-empty string on this document.
//
// fields is the document body for create (full document) or update
// (changed fields only). routingFields is where parent routing attribute
// values are read from; pass the same map as fields for create/delete
// (the full document), and the document's current full field set for
// update, since a routing attribute absent from an update's diff is
// still needed to address the parent index. A nil routingFields falls
// back to fields. For a pure tombstone (fields == nil), pass an empty
// map — the own-index delete action is still emitted, and no parent
// actions are (there is nothing to read routing attrs from).
func BuildActions(reg *model.Registry, m model.Model, op Op, id string, fields, routingFields map[string]any) ([]Action, error) {
	if routingFields == nil {
		routingFields = fields
	}
	docName := m.DocumentName()
	hasChildren := len(reg.Children(docName)) > 0

	own := Action{Op: op, Index: m.TableName(), ID: id, Routing: id}
	switch op {
	case OpCreate:
		src := cloneFields(fields)
		src["type"] = docName
		if hasChildren {
			src["join"] = docName
		}
		own.Source = src
	case OpUpdate:
		own.Source = map[string]any{"doc": fields}
	case OpDelete:
		// no source
	default:
		return nil, fmt.Errorf("tablesync: unknown bulk op %q", op)
	}

	actions := []Action{own}

	for _, p := range reg.Parents(docName) {
		raw, ok := routingFields[p.RoutingAttr]
		if !ok {
			continue
		}
		parentID, ok := raw.(string)
		if !ok || parentID == "" {
			continue // document logically has no such parent; skip silently
		}

		pa := Action{Op: op, Index: p.Index, ID: id, Routing: parentID}
		switch op {
		case OpCreate:
			src := cloneFields(fields)
			src["type"] = docName
			src["join"] = map[string]any{"name": docName, "parent": parentID}
			pa.Source = src
		case OpUpdate:
			pa.Source = map[string]any{"doc": fields}
		case OpDelete:
			// no source
		}
		actions = append(actions, pa)
	}

	return actions, nil
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+2)
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// BuildBulkBody concatenates every action's lines with "\n" and ensures
// the returned body ends with a trailing "\n", per spec.md §4.D's bulk
// action framing.
func BuildBulkBody(actions []Action) ([]byte, error) {
	var buf bytes.Buffer
	for _, a := range actions {
		lines, err := a.lines()
		if err != nil {
			return nil, err
		}
		for _, line := range lines {
			buf.Write(line)
			buf.WriteByte('\n')
		}
	}
	return buf.Bytes(), nil
}
