package spectral

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/RyanBlaney/sonido-acordes/algorithms/common"
	"github.com/mjibson/go-dsp/fft"
)

// Backend selects the transform implementation
type Backend string

const (
	// BackendRadix2 is the in-place iterative radix-2 transform (default)
	BackendRadix2 Backend = "radix2"
	// BackendGoDSP delegates to mjibson/go-dsp
	BackendGoDSP Backend = "godsp"
)

// FFT computes magnitude spectra of fixed-size real frames.
// A FFT owns a scratch buffer and is not safe for concurrent use.
type FFT struct {
	size     int
	backend  Backend
	twiddles []complex128
	buf      []complex128
	scratch  []float64
}

// NewFFT creates a transform of the given size, which must be a power of two
func NewFFT(size int, backend Backend) (*FFT, error) {
	if !common.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("fft size must be a power of two, got %d", size)
	}

	switch backend {
	case "", BackendRadix2:
		backend = BackendRadix2
	case BackendGoDSP:
	default:
		return nil, fmt.Errorf("unknown fft backend %q", backend)
	}

	f := &FFT{
		size:     size,
		backend:  backend,
		twiddles: make([]complex128, size/2),
		buf:      make([]complex128, size),
		scratch:  make([]float64, size),
	}
	for k := range f.twiddles {
		f.twiddles[k] = cmplx.Exp(complex(0, -2*math.Pi*float64(k)/float64(size)))
	}

	return f, nil
}

// Size returns the transform length
func (f *FFT) Size() int {
	return f.size
}

// Magnitude transforms frame (zero-padded to the transform size) and writes
// |X[k]| for k in [0, size/2) into out, which must hold size/2 values.
func (f *FFT) Magnitude(frame []float64, out []float64) error {
	if len(frame) > f.size {
		return fmt.Errorf("frame length %d exceeds fft size %d", len(frame), f.size)
	}
	if len(out) < f.size/2 {
		return fmt.Errorf("output holds %d bins, need %d", len(out), f.size/2)
	}

	if f.backend == BackendGoDSP {
		copy(f.scratch, frame)
		clear(f.scratch[len(frame):])
		spectrum := fft.FFTReal(f.scratch)
		for k := 0; k < f.size/2; k++ {
			out[k] = cmplx.Abs(spectrum[k])
		}
		return nil
	}

	for i := range f.buf {
		if i < len(frame) {
			f.buf[i] = complex(frame[i], 0)
		} else {
			f.buf[i] = 0
		}
	}

	f.transformInPlace(f.buf)

	for k := 0; k < f.size/2; k++ {
		out[k] = cmplx.Abs(f.buf[k])
	}
	return nil
}

// Transform runs the forward transform in place on x, whose length must
// equal the transform size.
func (f *FFT) Transform(x []complex128) error {
	if len(x) != f.size {
		return fmt.Errorf("input length %d does not match fft size %d", len(x), f.size)
	}
	f.transformInPlace(x)
	return nil
}

func (f *FFT) transformInPlace(x []complex128) {
	n := len(x)

	// bit-reversal permutation
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
	}

	for span := 2; span <= n; span <<= 1 {
		half := span >> 1
		stride := n / span
		for start := 0; start < n; start += span {
			for k := 0; k < half; k++ {
				w := f.twiddles[k*stride]
				a := x[start+k]
				b := w * x[start+k+half]
				x[start+k] = a + b
				x[start+k+half] = a - b
			}
		}
	}
}
