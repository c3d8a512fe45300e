package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntArg(t *testing.T) {
	n, err := parseIntArg("42")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	_, err = parseIntArg("not-a-number")
	assert.Error(t, err)
}

func TestParseVector(t *testing.T) {
	v, err := parseVector("1,2.5, 3")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2.5, 3}, v)

	_, err = parseVector("1,oops,3")
	assert.Error(t, err)
}
