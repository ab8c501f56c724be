package tablemanager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ceyewan/tablesync/internal/model"
	"github.com/ceyewan/tablesync/internal/primarystore"
	"github.com/ceyewan/tablesync/internal/primarystore/fake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct{ name, table string }

func (f fakeModel) DocumentName() string          { return f.name }
func (f fakeModel) TableName() string             { return f.table }
func (f fakeModel) Attributes() []model.Attribute { return nil }

type fakeSearchClient struct {
	mu       sync.Mutex
	existing map[string]bool
	mappings map[string]map[string]any
	bulks    int
}

func newFakeSearchClient() *fakeSearchClient {
	return &fakeSearchClient{existing: map[string]bool{}, mappings: map[string]map[string]any{}}
}

func (c *fakeSearchClient) Exists(ctx context.Context, index string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.existing[index], nil
}

func (c *fakeSearchClient) Delete(ctx context.Context, index string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	existed := c.existing[index]
	delete(c.existing, index)
	delete(c.mappings, index)
	return existed, nil
}

func (c *fakeSearchClient) GetMapping(ctx context.Context, index string) (map[string]any, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.mappings[index]
	return m, ok, nil
}

func (c *fakeSearchClient) PutMapping(ctx context.Context, index string, schema []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.existing[index] = true
	c.mappings[index] = map[string]any{"properties": map[string]any{"type": map[string]any{"type": "keyword"}}}
	return nil
}

func (c *fakeSearchClient) Bulk(ctx context.Context, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bulks++
	return nil
}

func (c *fakeSearchClient) Empty(ctx context.Context, indices []string) (bool, error) {
	return true, nil
}

func (c *fakeSearchClient) bulkCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bulks
}

func TestManager_New_ReconcilesAndBackfills(t *testing.T) {
	store := fake.New()
	store.Seed("programmer", []primarystore.Row{
		{ID: "P1", Fields: map[string]any{"name": "Ada"}},
		{ID: "P2", Fields: map[string]any{"name": "Grace"}},
	})

	client := newFakeSearchClient()
	models := []model.Model{fakeModel{name: "Programmer", table: "programmer"}}

	mgr, err := New(context.Background(), models, client, store, true, false)
	require.NoError(t, err)
	defer mgr.Stop()

	assert.True(t, client.existing["programmer"])
	assert.Equal(t, 1, client.bulkCount()) // both rows fit in one 100-row chunk
}

func TestManager_WatchOnStart_AppliesLiveEvents(t *testing.T) {
	store := fake.New()
	client := newFakeSearchClient()
	models := []model.Model{fakeModel{name: "Programmer", table: "programmer"}}

	mgr, err := New(context.Background(), models, client, store, false, true)
	require.NoError(t, err)

	store.Push("programmer", primarystore.ChangeEvent{Event: primarystore.EventCreated, ID: "P1", Value: map[string]any{"name": "Ada"}})

	require.Eventually(t, func() bool { return client.bulkCount() == 1 }, time.Second, 5*time.Millisecond)

	mgr.Stop()

	store.Push("programmer", primarystore.ChangeEvent{Event: primarystore.EventCreated, ID: "P2", Value: map[string]any{"name": "Grace"}})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, client.bulkCount(), "no further writes should occur after Stop")
}

func TestManager_BackfillSingleModel(t *testing.T) {
	store := fake.New()
	store.Seed("programmer", []primarystore.Row{{ID: "P1", Fields: map[string]any{"name": "Ada"}}})
	client := newFakeSearchClient()
	models := []model.Model{fakeModel{name: "Programmer", table: "programmer"}}

	mgr, err := New(context.Background(), models, client, store, false, false)
	require.NoError(t, err)
	defer mgr.Stop()

	require.NoError(t, mgr.Backfill(context.Background(), "Programmer"))
	assert.Equal(t, 1, client.bulkCount())

	err = mgr.Backfill(context.Background(), "Ghost")
	assert.Error(t, err)
}

func TestManager_StopIsIdempotent(t *testing.T) {
	store := fake.New()
	client := newFakeSearchClient()
	models := []model.Model{fakeModel{name: "Programmer", table: "programmer"}}

	mgr, err := New(context.Background(), models, client, store, false, true)
	require.NoError(t, err)

	mgr.Stop()
	assert.NotPanics(t, func() { mgr.Stop() })
}
