package windowing

import (
	"fmt"
	"math"
	"sync"
)

// Hann represents a periodic Hann window with precomputed coefficients
type Hann struct {
	size         int
	coefficients []float64
}

var (
	hannCacheMu sync.Mutex
	hannCache   = make(map[int]*Hann)
)

// NewHann returns the Hann window of the given size. Windows are cached by
// size and shared, so callers must treat them as read-only.
func NewHann(size int) *Hann {
	hannCacheMu.Lock()
	defer hannCacheMu.Unlock()

	if h, ok := hannCache[size]; ok {
		return h
	}

	h := &Hann{size: size}
	h.generate()
	hannCache[size] = h
	return h
}

func (h *Hann) generate() {
	if h.size <= 0 {
		h.coefficients = []float64{}
		return
	}

	h.coefficients = make([]float64, h.size)
	denominator := float64(h.size)
	for i := range h.size {
		h.coefficients[i] = 0.5 * (1.0 - math.Cos(2*math.Pi*float64(i)/denominator))
	}
}

// ApplyInPlace applies the window to a signal in-place
func (h *Hann) ApplyInPlace(signal []float64) error {
	if len(signal) != h.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), h.size)
	}

	for i := range h.size {
		signal[i] *= h.coefficients[i]
	}

	return nil
}

// Coefficient returns the i-th window coefficient
func (h *Hann) Coefficient(i int) float64 {
	return h.coefficients[i]
}

// Size returns the window size
func (h *Hann) Size() int {
	return h.size
}
