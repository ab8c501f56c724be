package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModel struct {
	name  string
	table string
	attrs []Attribute
}

func (f fakeModel) DocumentName() string    { return f.name }
func (f fakeModel) TableName() string       { return f.table }
func (f fakeModel) Attributes() []Attribute { return f.attrs }

func programmer() fakeModel {
	return fakeModel{name: "Programmer", table: "programmer"}
}

func migraine() fakeModel {
	return fakeModel{
		name:  "Migraine",
		table: "migraine",
		attrs: []Attribute{
			{Name: "programmer_id", SourceType: "string", Tags: map[string]string{TagParent: "Programmer"}},
		},
	}
}

func TestNewRegistry_ParentDiscovery(t *testing.T) {
	reg, err := NewRegistry([]Model{programmer(), migraine()})
	require.NoError(t, err)

	parents := reg.Parents("Migraine")
	require.Len(t, parents, 1)
	assert.Equal(t, "Programmer", parents[0].Name)
	assert.Equal(t, "programmer", parents[0].Index)
	assert.Equal(t, "programmer_id", parents[0].RoutingAttr)

	assert.Equal(t, []string{"Migraine"}, reg.Children("Programmer"))
	assert.Empty(t, reg.Children("Migraine"))
}

func TestNewRegistry_DuplicateDocumentName(t *testing.T) {
	_, err := NewRegistry([]Model{programmer(), programmer()})
	assert.ErrorIs(t, err, ErrDuplicateDocumentName)
}

func TestNewRegistry_UnknownParent(t *testing.T) {
	orphan := fakeModel{
		name:  "Orphan",
		table: "orphan",
		attrs: []Attribute{{Name: "owner_id", SourceType: "string", Tags: map[string]string{TagParent: "Ghost"}}},
	}
	_, err := NewRegistry([]Model{orphan})
	assert.ErrorIs(t, err, ErrUnknownParent)
}

func TestNewRegistry_CyclicParents(t *testing.T) {
	a := fakeModel{
		name:  "A",
		table: "a",
		attrs: []Attribute{{Name: "b_id", SourceType: "string", Tags: map[string]string{TagParent: "B"}}},
	}
	b := fakeModel{
		name:  "B",
		table: "b",
		attrs: []Attribute{{Name: "a_id", SourceType: "string", Tags: map[string]string{TagParent: "A"}}},
	}
	_, err := NewRegistry([]Model{a, b})
	assert.ErrorIs(t, err, ErrCyclicParents)
}

func TestRegistry_Lookups(t *testing.T) {
	reg, err := NewRegistry([]Model{programmer(), migraine()})
	require.NoError(t, err)

	m, ok := reg.ByDocumentName("Programmer")
	require.True(t, ok)
	assert.Equal(t, "programmer", m.TableName())

	_, ok = reg.ByDocumentName("Nonexistent")
	assert.False(t, ok)

	m, ok = reg.ByTableName("migraine")
	require.True(t, ok)
	assert.Equal(t, "Migraine", m.DocumentName())

	assert.Len(t, reg.Models(), 2)
}
