// Package metrics exposes the table manager's Prometheus instruments,
// registered against the default registry the way the reference
// corpus's gateway registers its request counters.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	bulkActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablemanager_bulk_actions_total",
			Help: "Bulk actions posted to the search cluster, by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	backfillDocumentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablemanager_backfill_documents_total",
			Help: "Documents written during a backfill, by model.",
		},
		[]string{"model"},
	)

	reconcileOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tablemanager_reconcile_outcomes_total",
			Help: "Reconciliation outcomes per model: unchanged, recreated, error.",
		},
		[]string{"model", "outcome"},
	)

	watcherState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tablemanager_watcher_state",
			Help: "Current watcher state per model: 0=Connecting 1=Streaming 2=Applying 3=Terminated.",
		},
		[]string{"model"},
	)
)

func init() {
	prometheus.MustRegister(bulkActionsTotal, backfillDocumentsTotal, reconcileOutcomesTotal, watcherState)
}

// BulkOutcome records one bulk action's op and outcome ("ok" or "error").
func BulkOutcome(op, outcome string) {
	bulkActionsTotal.WithLabelValues(op, outcome).Inc()
}

// BackfillDocuments records n documents successfully backfilled for model.
func BackfillDocuments(model string, n int) {
	backfillDocumentsTotal.WithLabelValues(model).Add(float64(n))
}

// ReconcileOutcome records one model's reconciliation outcome.
func ReconcileOutcome(model, outcome string) {
	reconcileOutcomesTotal.WithLabelValues(model, outcome).Inc()
}

// Gauge values SetWatcherState records, one per watch.State value.
const (
	StateConnecting = 0
	StateStreaming  = 1
	StateApplying   = 2
	StateTerminated = 3
)

// SetWatcherState records model's current watcher state.
func SetWatcherState(model string, state int) {
	watcherState.WithLabelValues(model).Set(float64(state))
}
