package vecstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataValueConstructors(t *testing.T) {
	f := FloatValue(3.5)
	assert.Equal(t, MetadataFloat, f.Kind)
	assert.Equal(t, 3.5, f.Float)

	b := BoolValue(true)
	assert.Equal(t, MetadataBool, b.Kind)
	assert.True(t, b.Bool)

	l := ListValue(StringValue("a"), IntValue(2), BoolValue(false))
	assert.Equal(t, MetadataList, l.Kind)
	require.Len(t, l.List, 3)
	assert.Equal(t, "a", l.List[0].Str)
	assert.Equal(t, int64(2), l.List[1].Int)
	assert.False(t, l.List[2].Bool)
}

func TestStoreRoundTripsFloatBoolAndListMetadata(t *testing.T) {
	s := newTestStore()
	md := Metadata{
		"score":   FloatValue(0.875),
		"enabled": BoolValue(true),
		"tags":    ListValue(StringValue("x"), StringValue("y")),
	}
	require.True(t, s.Insert("a", []float32{1, 2, 3}, md))

	_, got, found := s.Get("a")
	require.True(t, found)
	assert.Equal(t, 0.875, got["score"].Float)
	assert.True(t, got["enabled"].Bool)
	require.Len(t, got["tags"].List, 2)
	assert.Equal(t, "x", got["tags"].List[0].Str)
	assert.Equal(t, "y", got["tags"].List[1].Str)
}
