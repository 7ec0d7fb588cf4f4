package common

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Shared numeric helpers for the feature and decoding stages, built on gonum.

// Epsilon is the threshold below which a denominator is treated as zero
const Epsilon = 1e-12

// Percentile calculates the p-th percentile (p between 0 and 100).
// Empty input yields 0.
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0.0
	}

	p = Clamp(p, 0, 100)

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	return stat.Quantile(p/100.0, stat.Empirical, sorted, nil)
}

// Sum returns the sum of data
func Sum(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Sum(data)
}

// SafeDivisor returns d, or 1 when d is (near) zero
func SafeDivisor(d float64) float64 {
	if math.Abs(d) < Epsilon {
		return 1.0
	}
	return d
}

// L1NormalizeInPlace scales data so it sums to one. All-zero input stays zero.
func L1NormalizeInPlace(data []float64) {
	total := 0.0
	for _, v := range data {
		total += math.Abs(v)
	}
	if total < Epsilon {
		return
	}
	floats.Scale(1.0/total, data)
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Zero vectors have similarity 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na < Epsilon || nb < Epsilon {
		return 0.0
	}

	return floats.Dot(a, b) / (na * nb)
}

// Correlation calculates the Pearson correlation coefficient between two series.
// Constant series (undefined correlation) yield 0.
func Correlation(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return 0.0
	}

	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0.0
	}
	return r
}

// ArgMax returns the index of the largest value, or -1 for empty input.
// Ties resolve to the lowest index.
func ArgMax(data []float64) int {
	if len(data) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(data); i++ {
		if data[i] > data[best] {
			best = i
		}
	}
	return best
}

// Clamp constrains a value to a range
func Clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// IsPowerOfTwo checks if n is a power of 2
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// NextPowerOfTwo finds the next power of 2 >= n
func NextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}

	power := 1
	for power < n {
		power <<= 1
	}
	return power
}

// PitchClass folds any integer onto 0..11
func PitchClass(n int) int {
	return ((n % 12) + 12) % 12
}
