// Package fake is an in-memory primarystore.Store used by tests, with a
// Push method tests use to drive a watcher deterministically.
package fake

import (
	"context"
	"sync"

	"github.com/ceyewan/tablesync/internal/primarystore"
)

// Store is an in-memory primarystore.Store. Create one with New; the zero
// value has no tables allocated.
type Store struct {
	mu     sync.Mutex
	tables map[string][]primarystore.Row
	chans  map[string][]chan primarystore.ChangeEvent
	closed map[string]bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		tables: make(map[string][]primarystore.Row),
		chans:  make(map[string][]chan primarystore.ChangeEvent),
		closed: make(map[string]bool),
	}
}

// Seed sets the current rows for table, as read by IterateAll.
func (s *Store) Seed(table string, rows []primarystore.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = rows
}

// Push delivers event to every open change stream on table.
func (s *Store) Push(table string, event primarystore.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.chans[table] {
		ch <- event
	}
}

// StreamCount reports how many change streams are currently open on
// table, for tests that need to wait for a watcher to have connected.
func (s *Store) StreamCount(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chans[table])
}

// CloseStreams closes every open change stream on table, causing their
// Next calls to return ok=false.
func (s *Store) CloseStreams(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.chans[table] {
		close(ch)
	}
	s.chans[table] = nil
}

func (s *Store) IterateAll(ctx context.Context, table string) (primarystore.RowIterator, error) {
	s.mu.Lock()
	rows := append([]primarystore.Row(nil), s.tables[table]...)
	s.mu.Unlock()
	return &rowIterator{rows: rows}, nil
}

func (s *Store) Watch(ctx context.Context, table string) (primarystore.ChangeStream, error) {
	ch := make(chan primarystore.ChangeEvent, 16)
	s.mu.Lock()
	s.chans[table] = append(s.chans[table], ch)
	s.mu.Unlock()
	return &changeStream{ch: ch}, nil
}

type rowIterator struct {
	rows []primarystore.Row
	pos  int
}

func (it *rowIterator) Next(ctx context.Context) (primarystore.Row, bool, error) {
	if it.pos >= len(it.rows) {
		return primarystore.Row{}, false, nil
	}
	row := it.rows[it.pos]
	it.pos++
	return row, true, nil
}

func (it *rowIterator) Close() error { return nil }

type changeStream struct {
	ch chan primarystore.ChangeEvent
}

func (c *changeStream) Next(ctx context.Context) (primarystore.ChangeEvent, bool, error) {
	select {
	case ev, ok := <-c.ch:
		if !ok {
			return primarystore.ChangeEvent{}, false, nil
		}
		return ev, true, nil
	case <-ctx.Done():
		return primarystore.ChangeEvent{}, false, ctx.Err()
	}
}

func (c *changeStream) Close() error { return nil }
