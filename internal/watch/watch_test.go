package watch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ceyewan/tablesync/internal/logging"
	"github.com/ceyewan/tablesync/internal/model"
	"github.com/ceyewan/tablesync/internal/primarystore"
	"github.com/ceyewan/tablesync/internal/primarystore/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	name, table string
	attrs       []model.Attribute
}

func (f fakeModel) DocumentName() string          { return f.name }
func (f fakeModel) TableName() string             { return f.table }
func (f fakeModel) Attributes() []model.Attribute { return f.attrs }

func programmerModel() fakeModel { return fakeModel{name: "Programmer", table: "programmer"} }

func coffeeModel() fakeModel {
	return fakeModel{
		name:  "Coffee",
		table: "coffee",
		attrs: []model.Attribute{
			{Name: "programmer_id", SourceType: "string", Tags: map[string]string{model.TagParent: "Programmer"}},
		},
	}
}

type recordingClient struct {
	mu     sync.Mutex
	bulks  int
	bodies [][]byte
}

func (c *recordingClient) Bulk(ctx context.Context, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bulks++
	c.bodies = append(c.bodies, body)
	return nil
}

func (c *recordingClient) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bulks
}

func (c *recordingClient) lastBody() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bodies) == 0 {
		return ""
	}
	return string(c.bodies[len(c.bodies)-1])
}

type noopBackfiller struct{ calls int32 }

func (b *noopBackfiller) One(ctx context.Context, m model.Model) error { return nil }

type countingBackfiller struct {
	mu    sync.Mutex
	calls int
}

func (b *countingBackfiller) One(ctx context.Context, m model.Model) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return nil
}

func (b *countingBackfiller) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func TestWatcher_AppliesEventsUntilStop(t *testing.T) {
	store := fake.New()
	reg, err := model.NewRegistry([]model.Model{fakeModel{name: "Programmer", table: "programmer"}})
	require.NoError(t, err)

	client := &recordingClient{}
	stop := make(chan struct{})
	w := New(store, client, &noopBackfiller{}, reg, fakeModel{name: "Programmer", table: "programmer"}, stop, logging.Nop())
	w.Start()

	store.Push("programmer", primarystore.ChangeEvent{Event: primarystore.EventCreated, ID: "P1", Value: map[string]any{"name": "Ada"}})

	require.Eventually(t, func() bool { return client.count() == 1 }, time.Second, 5*time.Millisecond)

	close(stop)
	w.Wait()
}

func TestWatcher_SkipsTombstoneWithoutValue(t *testing.T) {
	store := fake.New()
	reg, err := model.NewRegistry([]model.Model{fakeModel{name: "Programmer", table: "programmer"}})
	require.NoError(t, err)

	client := &recordingClient{}
	stop := make(chan struct{})
	w := New(store, client, &noopBackfiller{}, reg, fakeModel{name: "Programmer", table: "programmer"}, stop, logging.Nop())
	w.Start()

	store.Push("programmer", primarystore.ChangeEvent{Event: primarystore.EventUpdated, ID: "P1", Value: nil})
	store.Push("programmer", primarystore.ChangeEvent{Event: primarystore.EventDeleted, ID: "P1", Value: nil})

	require.Eventually(t, func() bool { return client.count() == 1 }, time.Second, 5*time.Millisecond)

	close(stop)
	w.Wait()
	assert.Equal(t, 1, client.count(), "only the delete, not the valueless update, should have produced a bulk write")
}

func TestWatcher_UpdateOnChildFansOutToParentEvenWhenDiffOmitsRoutingAttr(t *testing.T) {
	store := fake.New()
	reg, err := model.NewRegistry([]model.Model{programmerModel(), coffeeModel()})
	require.NoError(t, err)

	client := &recordingClient{}
	stop := make(chan struct{})
	w := New(store, client, &noopBackfiller{}, reg, coffeeModel(), stop, logging.Nop())
	w.Start()

	// The diff only carries "roast"; programmer_id (the routing attr) is
	// unchanged and so missing from it, but Current carries the full
	// current document, which is where the parent fan-out must look.
	store.Push("coffee", primarystore.ChangeEvent{
		Event:   primarystore.EventUpdated,
		ID:      "C1",
		Value:   map[string]any{"roast": "dark"},
		Current: map[string]any{"programmer_id": "P1", "roast": "dark"},
	})

	require.Eventually(t, func() bool { return client.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Contains(t, client.lastBody(), `"programmer"`, "the parent index must still be written on a partial update")
	assert.Contains(t, client.lastBody(), `"routing":"P1"`)

	close(stop)
	w.Wait()
}

func TestWatcher_BackfillsBeforeResumingOnReconnect(t *testing.T) {
	store := fake.New()
	reg, err := model.NewRegistry([]model.Model{fakeModel{name: "Programmer", table: "programmer"}})
	require.NoError(t, err)

	client := &recordingClient{}
	backfiller := &countingBackfiller{}
	stop := make(chan struct{})
	w := New(store, client, backfiller, reg, fakeModel{name: "Programmer", table: "programmer"}, stop, logging.Nop())
	w.Start()

	// Wait for the first stream to be open, then force a reconnect; the
	// very first attempt must not backfill, but every subsequent one must.
	require.Eventually(t, func() bool { return store.StreamCount("programmer") > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, backfiller.count(), "the initial connection must not trigger a backfill")

	store.CloseStreams("programmer")

	require.Eventually(t, func() bool { return backfiller.count() >= 1 }, time.Second, 5*time.Millisecond)

	close(stop)
	w.Wait()
}

func TestWatcher_StopBeforeFirstStreamOpen(t *testing.T) {
	store := fake.New()
	reg, err := model.NewRegistry([]model.Model{fakeModel{name: "Programmer", table: "programmer"}})
	require.NoError(t, err)

	client := &recordingClient{}
	stop := make(chan struct{})
	close(stop)

	w := New(store, client, &noopBackfiller{}, reg, fakeModel{name: "Programmer", table: "programmer"}, stop, logging.Nop())
	w.Start()
	w.Wait()

	assert.Equal(t, 0, client.count())
}
