// Package reconcile implements spec.md §4.E's startup reconciliation: for
// each managed model, decide whether its live index still matches the
// derived schema; if any model has drifted, destructively recreate every
// managed index in parallel. Reconciliation never recreates only the
// drifted subset — a partial sweep would leave dangling child documents
// in parent indices whose schemas have diverged.
package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ceyewan/tablesync/internal/logging"
	"github.com/ceyewan/tablesync/internal/metrics"
	"github.com/ceyewan/tablesync/internal/model"
	"github.com/ceyewan/tablesync/internal/schema"
	"github.com/ceyewan/tablesync/internal/search"
	"golang.org/x/sync/errgroup"
)

// Client is the subset of search.Client reconcile depends on.
type Client interface {
	Exists(ctx context.Context, index string) (bool, error)
	Delete(ctx context.Context, index string) (bool, error)
	GetMapping(ctx context.Context, index string) (map[string]any, bool, error)
	PutMapping(ctx context.Context, index string, schema []byte) error
}

// Reconciler derives and applies schemas for a model registry.
type Reconciler struct {
	client Client
	reg    *model.Registry
	logger logging.Logger
}

// New returns a Reconciler over the given registry and search client.
func New(client Client, reg *model.Registry, logger logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Namespace("reconcile")
	}
	return &Reconciler{client: client, reg: reg, logger: logger}
}

// needsReindex reports whether m's live index is missing or its mapping
// has drifted from the derived schema.
func (r *Reconciler) needsReindex(ctx context.Context, m model.Model, derivedMappings map[string]any) (bool, error) {
	index := m.TableName()

	exists, err := r.client.Exists(ctx, index)
	if err != nil {
		return false, fmt.Errorf("checking index %q: %w", index, err)
	}
	if !exists {
		return true, nil
	}

	liveMapping, found, err := r.client.GetMapping(ctx, index)
	if err != nil {
		return false, fmt.Errorf("getting mapping for %q: %w", index, err)
	}
	if !found {
		return true, nil
	}
	return !search.Equivalent(liveMapping, derivedMappings), nil
}

// Run implements reconcile(): check every model, and if any needs
// reindexing, destructively recreate every managed index with its
// derived schema, in parallel. It reports whether a reindex occurred.
func (r *Reconciler) Run(ctx context.Context) (reindexed bool, err error) {
	models := r.reg.Models()
	derivedSchemas := make([][]byte, len(models))
	derivedMappings := make([]map[string]any, len(models))

	for i, m := range models {
		s, err := schema.Build(r.reg, m, r.logger)
		if err != nil {
			return false, fmt.Errorf("deriving schema for %q: %w", m.TableName(), err)
		}
		derivedSchemas[i] = s

		var doc struct {
			Mappings map[string]any `json:"mappings"`
		}
		if err := json.Unmarshal(s, &doc); err != nil {
			return false, fmt.Errorf("decoding derived schema for %q: %w", m.TableName(), err)
		}
		derivedMappings[i] = doc.Mappings
	}

	checkGroup, checkCtx := errgroup.WithContext(ctx)
	needs := make([]bool, len(models))
	for i, m := range models {
		i, m := i, m
		checkGroup.Go(func() error {
			ok, err := r.needsReindex(checkCtx, m, derivedMappings[i])
			if err != nil {
				return fmt.Errorf("checking %q: %w", m.DocumentName(), err)
			}
			needs[i] = ok
			return nil
		})
	}
	if err := checkGroup.Wait(); err != nil {
		return false, err
	}

	anyDrifted := false
	for _, n := range needs {
		if n {
			anyDrifted = true
			break
		}
	}
	if !anyDrifted {
		for _, m := range models {
			metrics.ReconcileOutcome(m.DocumentName(), "unchanged")
		}
		return false, nil
	}

	reindexGroup, reindexCtx := errgroup.WithContext(ctx)
	for i, m := range models {
		i, m := i, m
		reindexGroup.Go(func() error {
			index := m.TableName()
			if _, err := r.client.Delete(reindexCtx, index); err != nil {
				metrics.ReconcileOutcome(m.DocumentName(), "error")
				return fmt.Errorf("deleting index %q: %w", index, err)
			}
			if err := r.client.PutMapping(reindexCtx, index, derivedSchemas[i]); err != nil {
				metrics.ReconcileOutcome(m.DocumentName(), "error")
				return err
			}
			metrics.ReconcileOutcome(m.DocumentName(), "recreated")
			r.logger.Info("recreated index", logging.String("index", index))
			return nil
		})
	}
	if err := reindexGroup.Wait(); err != nil {
		return false, err
	}
	return true, nil
}

// ReindexAll unconditionally recreates every managed index, for the
// facade's operational reindex_all entry point.
func (r *Reconciler) ReindexAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, m := range r.reg.Models() {
		m := m
		g.Go(func() error { return r.reindexOne(ctx, m) })
	}
	return g.Wait()
}

// Reindex deletes and recreates the index for a single named model, for
// the facade's operational reindex(model) entry point.
func (r *Reconciler) Reindex(ctx context.Context, docName string) error {
	m, ok := r.reg.ByDocumentName(docName)
	if !ok {
		return fmt.Errorf("tablesync: unknown model %q", docName)
	}
	return r.reindexOne(ctx, m)
}

func (r *Reconciler) reindexOne(ctx context.Context, m model.Model) error {
	index := m.TableName()
	derivedSchema, err := schema.Build(r.reg, m, r.logger)
	if err != nil {
		metrics.ReconcileOutcome(m.DocumentName(), "error")
		return fmt.Errorf("deriving schema for %q: %w", index, err)
	}
	if _, err := r.client.Delete(ctx, index); err != nil {
		metrics.ReconcileOutcome(m.DocumentName(), "error")
		return fmt.Errorf("deleting index %q: %w", index, err)
	}
	if err := r.client.PutMapping(ctx, index, derivedSchema); err != nil {
		metrics.ReconcileOutcome(m.DocumentName(), "error")
		return err
	}
	metrics.ReconcileOutcome(m.DocumentName(), "recreated")
	r.logger.Info("recreated index", logging.String("index", index))
	return nil
}
