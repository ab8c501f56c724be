package typemap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_TagOverrideWins(t *testing.T) {
	ft, ok, err := Map("string", "keyword")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "keyword", ft)
}

func TestMap_InvalidTagOverride(t *testing.T) {
	_, _, err := Map("string", "not_a_real_type")
	assert.ErrorIs(t, err, ErrInvalidFieldType)
}

func TestMap_ScalarSourceTypes(t *testing.T) {
	cases := map[string]string{
		"bool":      "boolean",
		"int8":      "byte",
		"int16":     "short",
		"int32":     "integer",
		"int64":     "long",
		"float32":   "float",
		"float64":   "double",
		"string":    "text",
		"time":      "date",
		"timestamp": "date",
		"JSON":      "object",
		"map":       "object",
	}
	for source, want := range cases {
		ft, ok, err := Map(source, "")
		require.NoError(t, err)
		require.True(t, ok, "source type %q should map", source)
		assert.Equal(t, want, ft, "source type %q", source)
	}
}

func TestMap_BareIntegerAndFloatAliases(t *testing.T) {
	cases := map[string]string{
		"integer": "integer",
		"int":     "integer",
		"float":   "float",
		"short":   "short",
		"long":    "long",
		"double":  "double",
		"byte":    "byte",
		"boolean": "boolean",
	}
	for source, want := range cases {
		ft, ok, err := Map(source, "")
		require.NoError(t, err)
		require.True(t, ok, "source type %q should map", source)
		assert.Equal(t, want, ft, "source type %q", source)
	}
}

func TestMap_ParametrizedKeyValueContainers(t *testing.T) {
	cases := []string{"map<string,string>", "hash<string,int32>", "record<name:string>"}
	for _, source := range cases {
		ft, ok, err := Map(source, "")
		require.NoError(t, err)
		require.True(t, ok, "source type %q should map", source)
		assert.Equal(t, "object", ft, "source type %q", source)
	}
}

func TestMap_HomogeneousCollections(t *testing.T) {
	ft, ok, err := Map("array<string>", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "text", ft)

	ft, ok, err = Map("set<int32>", "")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "integer", ft)
}

func TestMap_UnknownTypeOmitted(t *testing.T) {
	_, ok, err := Map("some_exotic_type", "")
	require.NoError(t, err)
	assert.False(t, ok)
}
