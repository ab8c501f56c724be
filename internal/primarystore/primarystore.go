// Package primarystore defines the two capabilities the table manager
// consumes from the authoritative store, per spec.md §6: iterating a
// table's rows with majority read consistency, and opening a per-table
// change stream. Any transport implementing these two interfaces is
// acceptable; see mongostore for a reference adapter and fake for an
// in-memory test double.
package primarystore

import "context"

// Row is one record read during a backfill.
type Row struct {
	ID     string
	Fields map[string]any
}

// RowIterator streams a table's rows with read consistency = majority.
type RowIterator interface {
	// Next returns the next row, or ok=false once exhausted.
	Next(ctx context.Context) (row Row, ok bool, err error)
	Close() error
}

// EventKind is the kind of change a ChangeStream event carries.
type EventKind string

const (
	EventCreated EventKind = "Created"
	EventUpdated EventKind = "Updated"
	EventDeleted EventKind = "Deleted"
)

// ChangeEvent is one change-stream event. Value may be nil on a Deleted
// event (a delete with no before-image); the watcher still writes the
// delete, and skips only Created/Updated events whose Value is nil.
//
// Current, when non-nil, is the document's full current field set. For
// Created/Deleted events it is the same information as Value; for
// Updated events Value may be only the changed fields (a genuine diff),
// while Current is the full document as of the change, looked up
// separately by the adapter. Fan-out writes need Current to find a
// parent's routing attribute even when an update doesn't touch that
// attribute itself.
type ChangeEvent struct {
	Event   EventKind
	ID      string
	Value   map[string]any
	Current map[string]any
}

// ChangeStream yields change events for one table.
type ChangeStream interface {
	// Next blocks until the next event, ctx cancellation, or a transport
	// error. ok is false only on a graceful end of stream.
	Next(ctx context.Context) (event ChangeEvent, ok bool, err error)
	Close() error
}

// Store opens iterators and change streams for managed tables.
type Store interface {
	IterateAll(ctx context.Context, table string) (RowIterator, error)
	Watch(ctx context.Context, table string) (ChangeStream, error)
}
