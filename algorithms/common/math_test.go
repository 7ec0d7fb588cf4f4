package common

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	data := []float64{5, 1, 4, 2, 3}

	assert.Equal(t, 1.0, Percentile(data, 0))
	assert.Equal(t, 3.0, Percentile(data, 50))
	assert.Equal(t, 5.0, Percentile(data, 100))
	assert.Equal(t, 0.0, Percentile(nil, 40))

	// input must not be reordered
	assert.Equal(t, []float64{5, 1, 4, 2, 3}, data)
}

func TestL1NormalizeInPlace(t *testing.T) {
	v := []float64{1, 3, 0, 4}
	L1NormalizeInPlace(v)
	assert.InDelta(t, 1.0, Sum(v), 1e-12)
	assert.InDelta(t, 0.375, v[1], 1e-12)

	zero := []float64{0, 0, 0}
	L1NormalizeInPlace(zero)
	assert.Equal(t, []float64{0, 0, 0}, zero)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-12)
	assert.InDelta(t, 0.0, CosineSimilarity([]float64{1, 0}, []float64{0, 1}), 1e-12)
	assert.Equal(t, 0.0, CosineSimilarity([]float64{0, 0}, []float64{1, 1}))
	assert.Equal(t, 0.0, CosineSimilarity([]float64{1}, []float64{1, 1}))
}

func TestCorrelationConstantSeries(t *testing.T) {
	r := Correlation([]float64{1, 1, 1}, []float64{1, 2, 3})
	assert.False(t, math.IsNaN(r))
	assert.Equal(t, 0.0, r)
	assert.InDelta(t, 1.0, Correlation([]float64{1, 2, 3}, []float64{2, 4, 6}), 1e-12)
}

func TestArgMaxPrefersLowestIndexOnTie(t *testing.T) {
	assert.Equal(t, 1, ArgMax([]float64{0, 3, 3, 1}))
	assert.Equal(t, -1, ArgMax(nil))
}

func TestPowersOfTwo(t *testing.T) {
	assert.True(t, IsPowerOfTwo(4096))
	assert.False(t, IsPowerOfTwo(4000))
	assert.Equal(t, 4096, NextPowerOfTwo(4000))
	assert.Equal(t, 4096, NextPowerOfTwo(4096))
	assert.Equal(t, 1, NextPowerOfTwo(0))
}

func TestPitchClass(t *testing.T) {
	assert.Equal(t, 11, PitchClass(-1))
	assert.Equal(t, 0, PitchClass(12))
	assert.Equal(t, 7, PitchClass(55))
	assert.Equal(t, 1.0, SafeDivisor(0))
	assert.Equal(t, 2.5, SafeDivisor(2.5))
}
