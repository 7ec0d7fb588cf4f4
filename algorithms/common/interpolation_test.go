package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinearInterpolate(t *testing.T) {
	interp := NewInterpolator(Linear)
	data := []float64{0, 10, 20, 40}

	assert.Equal(t, 0.0, interp.Interpolate(data, -1))
	assert.Equal(t, 5.0, interp.Interpolate(data, 0.5))
	assert.Equal(t, 30.0, interp.Interpolate(data, 2.5))
	assert.Equal(t, 40.0, interp.Interpolate(data, 7))
	assert.Equal(t, 0.0, interp.Interpolate(nil, 1))
}

func TestCubicInterpolate(t *testing.T) {
	interp := NewInterpolator(Cubic)

	// a straight line stays straight
	line := []float64{0, 1, 2, 3, 4, 5}
	assert.InDelta(t, 2.25, interp.Interpolate(line, 2.25), 1e-12)

	// passes through the samples
	data := []float64{1, 3, -2, 4, 0}
	assert.InDelta(t, -2, interp.Interpolate(data, 2), 1e-12)

	// edges fall back to linear
	assert.InDelta(t, 2, interp.Interpolate(data, 0.5), 1e-12)
}

func TestResampleSignal(t *testing.T) {
	interp := NewInterpolator(Linear)

	out := interp.ResampleSignal([]float64{0, 1, 2, 3, 4, 5, 6, 7}, 4, 2)
	assert.Equal(t, []float64{0, 2, 4, 6}, out)

	up := interp.ResampleSignal([]float64{0, 2, 4}, 1, 2)
	assert.Equal(t, []float64{0, 1, 2, 3, 4, 4}, up)

	assert.Empty(t, interp.ResampleSignal(nil, 44100, 22050))
	assert.Empty(t, interp.ResampleSignal([]float64{1}, 0, 22050))
}
