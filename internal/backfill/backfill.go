// Package backfill implements spec.md §4.F: streaming a table from the
// primary store with majority read consistency and re-emitting it as
// bulk writes in bounded, concurrently-posted chunks.
package backfill

import (
	"context"
	"fmt"

	"github.com/ceyewan/tablesync/internal/logging"
	"github.com/ceyewan/tablesync/internal/metrics"
	"github.com/ceyewan/tablesync/internal/model"
	"github.com/ceyewan/tablesync/internal/primarystore"
	"github.com/ceyewan/tablesync/internal/search"
	"golang.org/x/sync/errgroup"
)

// chunkSize is the number of rows grouped into a single bulk post.
const chunkSize = 100

// SearchClient is the subset of search.Client backfill depends on.
type SearchClient interface {
	Bulk(ctx context.Context, body []byte) error
	Empty(ctx context.Context, indices []string) (bool, error)
}

// Backfiller re-populates search indices from the primary store.
type Backfiller struct {
	store  primarystore.Store
	client SearchClient
	reg    *model.Registry
	logger logging.Logger
}

// New returns a Backfiller.
func New(store primarystore.Store, client SearchClient, reg *model.Registry, logger logging.Logger) *Backfiller {
	if logger == nil {
		logger = logging.Namespace("backfill")
	}
	return &Backfiller{store: store, client: client, reg: reg, logger: logger}
}

// One backfills a single model: empty its index of whatever it currently
// holds, then stream its table, chunk into groups of chunkSize, and post
// each chunk's bulk body concurrently. A chunk that fails to post is
// logged and skipped; other chunks proceed. Emptying first means a
// backfill's result reflects exactly the primary store's current rows,
// not a mix of fresh and stale-but-undeleted documents.
func (b *Backfiller) One(ctx context.Context, m model.Model) error {
	if _, err := b.client.Empty(ctx, []string{m.TableName()}); err != nil {
		return fmt.Errorf("emptying %q before backfill: %w", m.TableName(), err)
	}

	it, err := b.store.IterateAll(ctx, m.TableName())
	if err != nil {
		return fmt.Errorf("iterating %q: %w", m.TableName(), err)
	}
	defer it.Close()

	g, gctx := errgroup.WithContext(ctx)
	chunk := make([]primarystore.Row, 0, chunkSize)

	flush := func(rows []primarystore.Row) {
		if len(rows) == 0 {
			return
		}
		rows = append([]primarystore.Row(nil), rows...)
		g.Go(func() error {
			b.postChunk(gctx, m, rows)
			return nil
		})
	}

	for {
		row, ok, err := it.Next(ctx)
		if err != nil {
			_ = g.Wait()
			return fmt.Errorf("reading %q: %w", m.TableName(), err)
		}
		if !ok {
			break
		}
		chunk = append(chunk, row)
		if len(chunk) == chunkSize {
			flush(chunk)
			chunk = make([]primarystore.Row, 0, chunkSize)
		}
	}
	flush(chunk)

	return g.Wait()
}

// postChunk builds one bulk body for rows and posts it, logging and
// swallowing any failure so sibling chunks are unaffected.
func (b *Backfiller) postChunk(ctx context.Context, m model.Model, rows []primarystore.Row) {
	var actions []search.Action
	for _, row := range rows {
		as, err := search.BuildActions(b.reg, m, search.OpCreate, row.ID, row.Fields, row.Fields)
		if err != nil {
			b.logger.Error("dropping row while building backfill actions",
				logging.String("model", m.DocumentName()),
				logging.String("id", row.ID),
				logging.Err(err))
			continue
		}
		actions = append(actions, as...)
	}

	body, err := search.BuildBulkBody(actions)
	if err != nil {
		b.logger.Error("failed to encode backfill chunk",
			logging.String("model", m.DocumentName()),
			logging.Int("chunk_size", len(rows)),
			logging.Err(err))
		metrics.BulkOutcome("backfill", "error")
		return
	}

	if err := b.client.Bulk(ctx, body); err != nil {
		b.logger.Error("backfill chunk failed",
			logging.String("model", m.DocumentName()),
			logging.Int("chunk_size", len(rows)),
			logging.Err(err))
		metrics.BulkOutcome("backfill", "error")
		return
	}

	metrics.BulkOutcome("backfill", "ok")
	metrics.BackfillDocuments(m.DocumentName(), len(rows))
}

// All backfills every managed model in parallel.
func (b *Backfiller) All(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, m := range b.reg.Models() {
		m := m
		g.Go(func() error { return b.One(ctx, m) })
	}
	return g.Wait()
}
