// Package watch implements spec.md §4.G: one long-lived task per model
// that consumes the primary store's change stream and emits per-event
// bulk writes, supervised with exponential backoff and a cooperative
// stop signal.
package watch

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/ceyewan/tablesync/internal/logging"
	"github.com/ceyewan/tablesync/internal/metrics"
	"github.com/ceyewan/tablesync/internal/model"
	"github.com/ceyewan/tablesync/internal/primarystore"
	"github.com/ceyewan/tablesync/internal/search"
)

// State is one of a watcher's state-machine states, per spec.md §4.G's
// diagram.
type State int

const (
	StateConnecting State = iota
	StateStreaming
	StateApplying
	StateTerminated
)

const (
	backoffBase        = 50 * time.Millisecond
	backoffMax         = 2 * time.Second
	retryWindowElapsed = 15 * time.Second
)

// SearchClient is the subset of search.Client watch depends on.
type SearchClient interface {
	Bulk(ctx context.Context, body []byte) error
}

// Backfiller is the subset of backfill.Backfiller a watcher invokes on
// reconnect, to capture events possibly missed while disconnected.
type Backfiller interface {
	One(ctx context.Context, m model.Model) error
}

// Watcher runs one model's change-stream consumption loop.
type Watcher struct {
	store      primarystore.Store
	client     SearchClient
	backfiller Backfiller
	reg        *model.Registry
	m          model.Model
	logger     logging.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New returns a Watcher for model m, sharing the given stop channel with
// every other watcher spawned by the same table manager instance.
func New(store primarystore.Store, client SearchClient, backfiller Backfiller, reg *model.Registry, m model.Model, stop chan struct{}, logger logging.Logger) *Watcher {
	if logger == nil {
		logger = logging.Namespace("watch")
	}
	return &Watcher{
		store:      store,
		client:     client,
		backfiller: backfiller,
		reg:        reg,
		m:          m,
		logger:     logger.With(logging.String("model", m.DocumentName())),
		stop:       stop,
	}
}

// Start launches the watcher's loop in a background goroutine. Wait
// blocks until the loop has returned.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run()
	}()
}

// Wait blocks until the watcher's loop has terminated.
func (w *Watcher) Wait() { w.wg.Wait() }

func (w *Watcher) stopped() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

// run is the state machine: Connecting -> Streaming -> Applying -> back
// to Streaming on each event, or Connecting on a transport/decode error,
// or Terminated on a stop signal or retry-window exhaustion.
func (w *Watcher) run() {
	firstAttempt := true

	for {
		if w.stopped() {
			w.terminate()
			return
		}

		metrics.SetWatcherState(w.m.DocumentName(), metrics.StateConnecting)
		if !firstAttempt {
			if err := w.backfiller.One(context.Background(), w.m); err != nil {
				w.logger.Error("backfill before resuming watch failed", logging.Err(err))
			}
		}
		firstAttempt = false

		exhausted := w.streamEpisode()
		if exhausted {
			w.logger.Error("watcher exhausted its retry window, terminating process",
				logging.String("model", w.m.DocumentName()))
			os.Exit(1)
		}
	}
}

// streamEpisode opens a change stream and consumes it until stop, a
// graceful end of stream, or a transport/decode error. It returns true
// only if reconnection attempts exhausted the retry window without ever
// successfully opening a stream.
func (w *Watcher) streamEpisode() (exhausted bool) {
	deadline := time.Now().Add(retryWindowElapsed)
	attempt := 0

	for {
		if w.stopped() {
			return false
		}

		stream, err := w.store.Watch(context.Background(), w.m.TableName())
		if err != nil {
			if time.Now().After(deadline) {
				return true
			}
			w.sleepBackoff(attempt)
			attempt++
			continue
		}

		metrics.SetWatcherState(w.m.DocumentName(), metrics.StateStreaming)
		streamErr := w.consume(stream)
		stream.Close()

		if streamErr == nil {
			return false // stop, or a graceful end of stream; the caller reconnects unless stopped
		}

		w.logger.Error("change stream error, reconnecting", logging.Err(streamErr))
		w.sleepBackoff(attempt)
		return false // the caller backfills before the next stream is opened
	}
}

// consume reads events from stream until stop, a graceful end of
// stream (nil error), or a transport/decode error (non-nil error).
func (w *Watcher) consume(stream primarystore.ChangeStream) error {
	for {
		if w.stopped() {
			return nil
		}

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			select {
			case <-w.stop:
				cancel()
			case <-ctx.Done():
			}
		}()
		event, ok, err := stream.Next(ctx)
		cancel()

		if err != nil {
			if w.stopped() {
				return nil
			}
			return err
		}
		if !ok {
			return nil
		}

		if w.stopped() {
			return nil
		}

		w.dispatch(event)
	}
}

// dispatch spawns a short-lived goroutine per event so a slow bulk write
// cannot stall the reading of the next event, per spec.md §5's fan-out
// model.
func (w *Watcher) dispatch(event primarystore.ChangeEvent) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.apply(event)
	}()
}

func (w *Watcher) apply(event primarystore.ChangeEvent) {
	metrics.SetWatcherState(w.m.DocumentName(), metrics.StateApplying)

	if event.Value == nil && event.Event != primarystore.EventDeleted {
		return // pure tombstone on a non-delete event carries nothing to index
	}

	var op search.Op
	switch event.Event {
	case primarystore.EventCreated:
		op = search.OpCreate
	case primarystore.EventUpdated:
		op = search.OpUpdate
	case primarystore.EventDeleted:
		op = search.OpDelete
	default:
		panic(fmt.Sprintf("tablesync: unknown change event kind %q", event.Event))
	}

	actions, err := search.BuildActions(w.reg, w.m, op, event.ID, event.Value, event.Current)
	if err != nil {
		w.logger.Error("dropping event while building actions",
			logging.String("id", event.ID), logging.Err(err))
		metrics.SetWatcherState(w.m.DocumentName(), metrics.StateStreaming)
		return
	}
	body, err := search.BuildBulkBody(actions)
	if err != nil {
		w.logger.Error("failed to encode event", logging.String("id", event.ID), logging.Err(err))
		metrics.SetWatcherState(w.m.DocumentName(), metrics.StateStreaming)
		return
	}

	if err := w.client.Bulk(context.Background(), body); err != nil {
		w.logger.Error("bulk write for event failed",
			logging.String("id", event.ID), logging.Err(err))
		metrics.BulkOutcome(string(op), "error")
	} else {
		metrics.BulkOutcome(string(op), "ok")
	}
	metrics.SetWatcherState(w.m.DocumentName(), metrics.StateStreaming)
}

func (w *Watcher) terminate() {
	metrics.SetWatcherState(w.m.DocumentName(), metrics.StateTerminated)
	w.logger.Info("watcher stopped")
}

// sleepBackoff sleeps for an exponentially growing, jittered duration
// capped at backoffMax, grounded on the hand-rolled retry backoff used
// for Kafka producer retries in the reference corpus.
func (w *Watcher) sleepBackoff(attempt int) {
	delay := backoffBase << attempt
	if delay > backoffMax || delay <= 0 {
		delay = backoffMax
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 2))
	select {
	case <-time.After(delay/2 + jitter):
	case <-w.stop:
	}
}
