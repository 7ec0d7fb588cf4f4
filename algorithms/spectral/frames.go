package spectral

import (
	"errors"
	"fmt"

	"github.com/RyanBlaney/sonido-acordes/algorithms/common"
	"github.com/RyanBlaney/sonido-acordes/algorithms/windowing"
	"github.com/RyanBlaney/sonido-acordes/logging"
)

// ErrInvalidFrameConfig reports a window/hop combination the analyzer cannot use
var ErrInvalidFrameConfig = errors.New("invalid frame configuration")

// FrameConfig controls how PCM is cut into analysis frames
type FrameConfig struct {
	SampleRate int     `json:"sample_rate"` // internal analysis rate (Hz)
	WindowSize int     `json:"window_size"` // samples per frame
	HopSize    int     `json:"hop_size"`    // samples between frame starts
	Backend    Backend `json:"backend"`     // transform implementation
}

// DefaultFrameConfig returns 4096-sample frames with a 0.1 s hop at 22050 Hz
func DefaultFrameConfig() FrameConfig {
	return FrameConfig{
		SampleRate: 22050,
		WindowSize: 4096,
		HopSize:    2205,
		Backend:    BackendRadix2,
	}
}

// Validate checks the configuration contract
func (c FrameConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidFrameConfig, c.SampleRate)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("%w: window size must be positive, got %d", ErrInvalidFrameConfig, c.WindowSize)
	}
	if c.HopSize <= 0 {
		return fmt.Errorf("%w: hop size must be positive, got %d", ErrInvalidFrameConfig, c.HopSize)
	}
	if c.HopSize >= c.WindowSize {
		return fmt.Errorf("%w: hop size %d must be smaller than window size %d", ErrInvalidFrameConfig, c.HopSize, c.WindowSize)
	}
	return nil
}

// HopSeconds returns the hop duration in seconds
func (c FrameConfig) HopSeconds() float64 {
	return float64(c.HopSize) / float64(c.SampleRate)
}

// Frame is one analysed window of mono PCM
type Frame struct {
	Index     int       `json:"index"`
	Offset    int       `json:"offset"`    // first sample of the frame
	Energy    float64   `json:"energy"`    // sum of squared windowed samples
	Magnitude []float64 `json:"magnitude"` // |X[k]| for k in [0, N/2)
}

// Analyzer windows PCM into overlapping frames and computes magnitude spectra
type Analyzer struct {
	config FrameConfig
	window *windowing.Hann
	fft    *FFT
	logger logging.Logger
}

// NewAnalyzer creates an analyzer, rejecting configurations that break the
// hop < window contract.
func NewAnalyzer(config FrameConfig) (*Analyzer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	transform, err := NewFFT(common.NextPowerOfTwo(config.WindowSize), config.Backend)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrameConfig, err)
	}

	return &Analyzer{
		config: config,
		window: windowing.NewHann(config.WindowSize),
		fft:    transform,
		logger: logging.WithFields(logging.Fields{
			"component": "spectral_frame_analyzer",
		}),
	}, nil
}

// Config returns the analyzer configuration
func (a *Analyzer) Config() FrameConfig {
	return a.config
}

// FFTSize returns the zero-padded transform length
func (a *Analyzer) FFTSize() int {
	return a.fft.Size()
}

// BinFrequency returns the centre frequency of bin k in Hz
func (a *Analyzer) BinFrequency(k int) float64 {
	return float64(k) * float64(a.config.SampleRate) / float64(a.fft.Size())
}

// NumFrames returns how many whole frames fit in n samples
func (a *Analyzer) NumFrames(n int) int {
	if n < a.config.WindowSize {
		return 0
	}
	return (n-a.config.WindowSize)/a.config.HopSize + 1
}

// Analyze returns one Frame per start s = k*hop with s+window <= len(signal).
// Input shorter than one window yields no frames.
func (a *Analyzer) Analyze(signal []float64) []Frame {
	numFrames := a.NumFrames(len(signal))
	if numFrames == 0 {
		a.logger.Debug("Signal shorter than one window", logging.Fields{
			"samples":     len(signal),
			"window_size": a.config.WindowSize,
		})
		return []Frame{}
	}

	frames := make([]Frame, numFrames)
	frameBuffer := make([]float64, a.config.WindowSize)
	bins := a.fft.Size() / 2

	for i := range numFrames {
		start := i * a.config.HopSize
		copy(frameBuffer, signal[start:start+a.config.WindowSize])

		// sizes always match, the window was built from the same config
		_ = a.window.ApplyInPlace(frameBuffer)

		energy := 0.0
		for _, s := range frameBuffer {
			energy += s * s
		}

		magnitude := make([]float64, bins)
		_ = a.fft.Magnitude(frameBuffer, magnitude)

		frames[i] = Frame{
			Index:     i,
			Offset:    start,
			Energy:    energy,
			Magnitude: magnitude,
		}
	}

	a.logger.Debug("Spectral frames computed", logging.Fields{
		"frames":   numFrames,
		"fft_size": a.fft.Size(),
		"hop_size": a.config.HopSize,
	})

	return frames
}
