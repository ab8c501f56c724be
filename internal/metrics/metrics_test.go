package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBulkOutcome_IncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(bulkActionsTotal.WithLabelValues("create", "ok"))
	BulkOutcome("create", "ok")
	after := testutil.ToFloat64(bulkActionsTotal.WithLabelValues("create", "ok"))
	assert.Equal(t, before+1, after)
}

func TestSetWatcherState_SetsGauge(t *testing.T) {
	SetWatcherState("Programmer", StateStreaming)
	assert.Equal(t, float64(StateStreaming), testutil.ToFloat64(watcherState.WithLabelValues("Programmer")))
}
