package fake

import (
	"context"
	"testing"

	"github.com/ceyewan/tablesync/internal/primarystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_IterateAll(t *testing.T) {
	s := New()
	s.Seed("programmer", []primarystore.Row{
		{ID: "P1", Fields: map[string]any{"name": "Ada"}},
		{ID: "P2", Fields: map[string]any{"name": "Grace"}},
	})

	it, err := s.IterateAll(context.Background(), "programmer")
	require.NoError(t, err)
	defer it.Close()

	var ids []string
	for {
		row, ok, err := it.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		ids = append(ids, row.ID)
	}
	assert.ElementsMatch(t, []string{"P1", "P2"}, ids)
}

func TestStore_WatchAndPush(t *testing.T) {
	s := New()
	stream, err := s.Watch(context.Background(), "programmer")
	require.NoError(t, err)

	s.Push("programmer", primarystore.ChangeEvent{Event: primarystore.EventCreated, ID: "P1", Value: map[string]any{"name": "Ada"}})

	event, ok, err := stream.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "P1", event.ID)
	assert.Equal(t, primarystore.EventCreated, event.Event)
}

func TestStore_CloseStreamsEndsIteration(t *testing.T) {
	s := New()
	stream, err := s.Watch(context.Background(), "programmer")
	require.NoError(t, err)

	s.CloseStreams("programmer")

	_, ok, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
