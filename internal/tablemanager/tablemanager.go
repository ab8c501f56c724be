// Package tablemanager is the facade described in spec.md §4.H:
// construction builds the model registry, reconciles the search
// cluster, and optionally starts backfill and watch tasks, in that
// order; Stop() tears every watcher down idempotently.
package tablemanager

import (
	"context"
	"fmt"
	"sync"

	"github.com/ceyewan/tablesync/internal/backfill"
	"github.com/ceyewan/tablesync/internal/logging"
	"github.com/ceyewan/tablesync/internal/model"
	"github.com/ceyewan/tablesync/internal/primarystore"
	"github.com/ceyewan/tablesync/internal/reconcile"
	"github.com/ceyewan/tablesync/internal/search"
	"github.com/ceyewan/tablesync/internal/watch"
)

// SearchClient is the subset of search.Client the facade and its
// subcomponents depend on.
type SearchClient interface {
	Exists(ctx context.Context, index string) (bool, error)
	Delete(ctx context.Context, index string) (bool, error)
	GetMapping(ctx context.Context, index string) (map[string]any, bool, error)
	PutMapping(ctx context.Context, index string, schema []byte) error
	Bulk(ctx context.Context, body []byte) error
	Empty(ctx context.Context, indices []string) (bool, error)
}

var _ SearchClient = (*search.Client)(nil)

// Option configures Manager construction.
type Option func(*options)

type options struct {
	logger logging.Logger
}

// WithLogger overrides the default namespaced logger.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Manager is the running table-sync facade for a fixed set of models.
type Manager struct {
	reg        *model.Registry
	client     SearchClient
	store      primarystore.Store
	reconciler *reconcile.Reconciler
	backfiller *backfill.Backfiller
	logger     logging.Logger

	stop     chan struct{}
	stopOnce sync.Once
	watchers []*watch.Watcher
}

// New constructs a Manager: builds the registry, reconciles the search
// cluster, and optionally runs an initial backfill and starts watchers,
// per spec.md §4.H's construction order.
func New(ctx context.Context, models []model.Model, client SearchClient, store primarystore.Store, backfillOnStart, watchOnStart bool, opts ...Option) (*Manager, error) {
	o := &options{logger: logging.Namespace("tablemanager")}
	for _, opt := range opts {
		opt(o)
	}

	reg, err := model.NewRegistry(models)
	if err != nil {
		return nil, fmt.Errorf("building model registry: %w", err)
	}

	mgr := &Manager{
		reg:        reg,
		client:     client,
		store:      store,
		reconciler: reconcile.New(client, reg, o.logger.With(logging.String("sub_component", "reconcile"))),
		backfiller: backfill.New(store, client, reg, o.logger.With(logging.String("sub_component", "backfill"))),
		logger:     o.logger,
		stop:       make(chan struct{}),
	}

	if _, err := mgr.reconciler.Run(ctx); err != nil {
		return nil, fmt.Errorf("reconciling search indices: %w", err)
	}

	if backfillOnStart {
		if err := mgr.backfiller.All(ctx); err != nil {
			return nil, fmt.Errorf("initial backfill: %w", err)
		}
	}

	if watchOnStart {
		mgr.startWatchers()
	}

	return mgr, nil
}

func (mgr *Manager) startWatchers() {
	for _, m := range mgr.reg.Models() {
		w := watch.New(mgr.store, mgr.client, mgr.backfiller, mgr.reg, m, mgr.stop,
			mgr.logger.With(logging.String("sub_component", "watch")))
		mgr.watchers = append(mgr.watchers, w)
		w.Start()
	}
}

// ReindexAll deletes and recreates every managed index with its derived
// schema, for operational use outside the startup reconciliation path.
func (mgr *Manager) ReindexAll(ctx context.Context) error {
	return mgr.reconciler.ReindexAll(ctx)
}

// Reindex deletes and recreates a single model's index by document name.
func (mgr *Manager) Reindex(ctx context.Context, docName string) error {
	return mgr.reconciler.Reindex(ctx, docName)
}

// BackfillAll re-populates every managed model's index from the primary
// store.
func (mgr *Manager) BackfillAll(ctx context.Context) error {
	return mgr.backfiller.All(ctx)
}

// Backfill re-populates a single model's index by document name, for
// operational one-shots.
func (mgr *Manager) Backfill(ctx context.Context, docName string) error {
	m, ok := mgr.reg.ByDocumentName(docName)
	if !ok {
		return fmt.Errorf("tablesync: unknown model %q", docName)
	}
	return mgr.backfiller.One(ctx, m)
}

// Registry exposes the manager's validated model registry.
func (mgr *Manager) Registry() *model.Registry { return mgr.reg }

// Stop closes the stop signal, asking every watcher to finish its
// current work and return. It is idempotent and safe to call from any
// goroutine; it blocks until every watcher has actually terminated.
func (mgr *Manager) Stop() {
	mgr.stopOnce.Do(func() {
		close(mgr.stop)
	})
	for _, w := range mgr.watchers {
		w.Wait()
	}
}
