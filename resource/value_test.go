package resource

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributesUnmarshal(t *testing.T) {
	raw := []byte(`{
		"title": "Normalization",
		"views": 42,
		"rating": 4.5,
		"published": true,
		"subtitle": null,
		"tags": ["cache", "sync"],
		"meta": {"revision": 3}
	}`)

	var attrs Attributes
	require.NoError(t, json.Unmarshal(raw, &attrs))

	assert.Equal(t, String("Normalization"), attrs["title"])
	assert.Equal(t, Int(42), attrs["views"])
	assert.Equal(t, Float(4.5), attrs["rating"])
	assert.Equal(t, Bool(true), attrs["published"])
	assert.Equal(t, Null{}, attrs["subtitle"])
	assert.Equal(t, Array{String("cache"), String("sync")}, attrs["tags"])
	assert.Equal(t, Object{"revision": Int(3)}, attrs["meta"])
}

func TestAttributesRoundTrip(t *testing.T) {
	attrs := Attributes{
		"title": String("a"),
		"count": Int(7),
		"none":  Null{},
	}
	data, err := json.Marshal(attrs)
	require.NoError(t, err)

	var decoded Attributes
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, attrs, decoded)
}

func TestFromAnyRejectsUnknownTypes(t *testing.T) {
	_, err := FromAny(struct{ X int }{1})
	assert.Error(t, err)
}

func TestInterfaceMap(t *testing.T) {
	attrs := Attributes{
		"title": String("a"),
		"views": Int(2),
		"tags":  Array{String("x")},
	}
	out := InterfaceMap(attrs)
	assert.Equal(t, "a", out["title"])
	assert.Equal(t, int64(2), out["views"])
	assert.Equal(t, []any{"x"}, out["tags"])
}
