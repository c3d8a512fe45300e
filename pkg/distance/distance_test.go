package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMetricAliases(t *testing.T) {
	cases := map[string]Metric{
		"cosine":       Cosine,
		"cos":          Cosine,
		"COS":          Cosine,
		"l2":           L2,
		"euclidean":    L2,
		"euclid":       L2,
		"dot":          InnerProduct,
		"dotproduct":   InnerProduct,
		"inner":        InnerProduct,
		"l1":           L1,
		"manhattan":    L1,
		"taxicab":      L1,
	}
	for name, want := range cases {
		got, ok := ParseMetric(name)
		require.True(t, ok, "alias %q should parse", name)
		assert.Equal(t, want, got, "alias %q", name)
	}

	_, ok := ParseMetric("bogus")
	assert.False(t, ok)
}

func TestCosineSimilarityIdentical(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	assert.InDelta(t, 1.0, Similarity(a, b, Cosine), 1e-6)
	assert.InDelta(t, 0.0, Distance(a, b, Cosine), 1e-6)
}

func TestCosineOrthogonal(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	assert.InDelta(t, 0.0, Similarity(a, b, Cosine), 1e-6)
}

func TestCosineZeroVectorGuard(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 0, 0}
	assert.Equal(t, float32(0), Similarity(a, b, Cosine))
}

func TestL2ScenarioFromSpec(t *testing.T) {
	p := []float32{0, 0, 0}
	q := []float32{3, 4, 0}

	assert.InDelta(t, 1.0, Similarity(p, p, L2), 1e-6)
	assert.InDelta(t, 1.0/6.0, Similarity(p, q, L2), 1e-3)
}

func TestInnerProduct(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{4, 5, 6}
	assert.InDelta(t, 32.0, Similarity(a, b, InnerProduct), 1e-6)
	assert.InDelta(t, -32.0, Distance(a, b, InnerProduct), 1e-6)
}

func TestManhattan(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}
	assert.InDelta(t, 7.0, Distance(a, b, L1), 1e-6)
	assert.InDelta(t, 1.0/8.0, Similarity(a, b, L1), 1e-6)
}

func TestMismatchedLengthPanics(t *testing.T) {
	assert.Panics(t, func() {
		Distance([]float32{1, 2}, []float32{1}, Cosine)
	})
}

func TestValidateComponentsRejectsNaNAndInf(t *testing.T) {
	assert.True(t, ValidateComponents([]float32{1, 2, 3}))
	assert.False(t, ValidateComponents([]float32{1, float32(math.NaN()), 3}))
	assert.False(t, ValidateComponents([]float32{1, float32(math.Inf(1)), 3}))
	assert.False(t, ValidateComponents([]float32{1, float32(math.Inf(-1)), 3}))
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4, 0}
	Normalize(v)
	assert.InDelta(t, 1.0, float64(v[0]*v[0]+v[1]*v[1]+v[2]*v[2]), 1e-4)

	zero := []float32{0, 0, 0}
	Normalize(zero)
	assert.Equal(t, []float32{0, 0, 0}, zero)
}
