package chroma

import (
	"errors"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-acordes/algorithms/common"
	"github.com/RyanBlaney/sonido-acordes/algorithms/spectral"
	"github.com/RyanBlaney/sonido-acordes/logging"
)

// NumPitchClasses is the size of a chroma vector (C, C#, D, ... B)
const NumPitchClasses = 12

// Vector is an octave-folded, L1-normalized pitch class profile
type Vector [NumPitchClasses]float64

// ErrInvalidChromaConfig reports unusable frequency ranges or thresholds
var ErrInvalidChromaConfig = errors.New("invalid chroma configuration")

// Config holds the frequency ranges and thresholds for chroma and bass
type Config struct {
	TuningFreq float64 `json:"tuning_freq"` // A4 reference (Hz)
	MinFreq    float64 `json:"min_freq"`    // lowest bin folded into chroma
	MaxFreq    float64 `json:"max_freq"`    // highest bin folded into chroma

	BassMinFreq    float64 `json:"bass_min_freq"`   // lowest bass fundamental searched
	BassMaxFreq    float64 `json:"bass_max_freq"`   // highest bass fundamental / bass band ceiling
	BassBandFloor  float64 `json:"bass_band_floor"` // bins below this are ignored (DC, rumble)
	BassPeakFloor  float64 `json:"bass_peak_floor"` // normalized autocorrelation needed to accept a bass
	BassBandRatio  float64 `json:"bass_band_ratio"` // bass band power needed relative to the octave above it
	BassRunLength  int     `json:"bass_run_length"` // equal neighbours required by stabilization
	BassPercentile float64 `json:"bass_percentile"` // energy percentile below which bass is dropped

	// EnergyGateTolerance relaxes percentile gates so that near-uniform
	// energies (sustained synthetic tones) keep every frame.
	EnergyGateTolerance float64 `json:"energy_gate_tolerance"`
}

// DefaultConfig returns the standard chroma and bass settings
func DefaultConfig() Config {
	return Config{
		TuningFreq:          440.0,
		MinFreq:             80.0,
		MaxFreq:             5000.0,
		BassMinFreq:         40.0,
		BassMaxFreq:         250.0,
		BassBandFloor:       20.0,
		BassPeakFloor:       0.3,
		BassBandRatio:       0.1,
		BassRunLength:       3,
		BassPercentile:      40.0,
		EnergyGateTolerance: 0.05,
	}
}

// Validate checks ranges and thresholds
func (c Config) Validate() error {
	if c.TuningFreq <= 0 {
		return fmt.Errorf("%w: tuning frequency must be positive", ErrInvalidChromaConfig)
	}
	if c.MinFreq <= 0 || c.MaxFreq <= c.MinFreq {
		return fmt.Errorf("%w: chroma range [%.1f, %.1f] Hz", ErrInvalidChromaConfig, c.MinFreq, c.MaxFreq)
	}
	if c.BassMinFreq <= 0 || c.BassMaxFreq <= c.BassMinFreq {
		return fmt.Errorf("%w: bass range [%.1f, %.1f] Hz", ErrInvalidChromaConfig, c.BassMinFreq, c.BassMaxFreq)
	}
	if c.BassBandRatio < 0 {
		return fmt.Errorf("%w: bass band ratio must not be negative", ErrInvalidChromaConfig)
	}
	if c.BassRunLength < 1 {
		return fmt.Errorf("%w: bass run length must be at least 1", ErrInvalidChromaConfig)
	}
	if c.BassPercentile < 0 || c.BassPercentile > 100 {
		return fmt.Errorf("%w: bass percentile %.1f outside [0, 100]", ErrInvalidChromaConfig, c.BassPercentile)
	}
	if c.EnergyGateTolerance < 0 || c.EnergyGateTolerance >= 1 {
		return fmt.Errorf("%w: energy gate tolerance must be in [0, 1)", ErrInvalidChromaConfig)
	}
	return nil
}

// Features is the per-frame output of extraction. It is not modified after
// Extract returns.
type Features struct {
	Chroma     []Vector  `json:"chroma"`
	Bass       []int     `json:"bass"` // stabilized, NoBass where rejected
	RawBass    []int     `json:"raw_bass"`
	Energy     []float64 `json:"energy"`
	HopSeconds float64   `json:"hop_seconds"`
}

// NumFrames returns the number of analysed frames
func (f *Features) NumFrames() int {
	if f == nil {
		return 0
	}
	return len(f.Chroma)
}

// Duration returns the time covered by the frame grid in seconds
func (f *Features) Duration() float64 {
	return float64(f.NumFrames()) * f.HopSeconds
}

// Extractor maps magnitude spectra to chroma vectors and bass pitch classes.
// Bin mappings and the bass cosine table are computed once per extractor.
type Extractor struct {
	config     Config
	sampleRate int
	fftSize    int

	pitchClassOfBin []int // -1 outside [MinFreq, MaxFreq]
	bass            *bassDetector

	logger logging.Logger
}

// NewExtractor prepares an extractor for spectra of fftSize points at sampleRate
func NewExtractor(config Config, sampleRate, fftSize int) (*Extractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if sampleRate <= 0 || fftSize <= 0 {
		return nil, fmt.Errorf("%w: sample rate %d, fft size %d", ErrInvalidChromaConfig, sampleRate, fftSize)
	}

	e := &Extractor{
		config:     config,
		sampleRate: sampleRate,
		fftSize:    fftSize,
		logger: logging.WithFields(logging.Fields{
			"component": "chroma_extractor",
		}),
	}
	e.pitchClassOfBin = e.calculateChromaMapping()
	e.bass = newBassDetector(config, sampleRate, fftSize)

	return e, nil
}

// calculateChromaMapping assigns each bin below Nyquist to a pitch class
func (e *Extractor) calculateChromaMapping() []int {
	bins := e.fftSize / 2
	mapping := make([]int, bins)
	resolution := float64(e.sampleRate) / float64(e.fftSize)

	for k := range bins {
		mapping[k] = -1
		freq := float64(k) * resolution
		if freq < e.config.MinFreq || freq > e.config.MaxFreq {
			continue
		}
		mapping[k] = FrequencyToPitchClass(freq, e.config.TuningFreq)
	}

	return mapping
}

// FrequencyToPitchClass returns round(69 + 12*log2(f/tuning)) mod 12
func FrequencyToPitchClass(freq, tuning float64) int {
	midi := 69.0 + 12.0*math.Log2(freq/tuning)
	return common.PitchClass(int(math.Round(midi)))
}

// Chroma folds one magnitude spectrum into an L1-normalized chroma vector.
// A silent frame yields the zero vector.
func (e *Extractor) Chroma(magnitude []float64) Vector {
	var v Vector
	for k, m := range magnitude {
		if k >= len(e.pitchClassOfBin) {
			break
		}
		if pc := e.pitchClassOfBin[k]; pc >= 0 {
			v[pc] += m
		}
	}
	common.L1NormalizeInPlace(v[:])
	return v
}

// Bass returns the raw bass pitch class of one magnitude spectrum, or NoBass
func (e *Extractor) Bass(magnitude []float64) int {
	return e.bass.detect(magnitude)
}

// Extract computes chroma, raw and stabilized bass, and energy for every frame
func (e *Extractor) Extract(frames []spectral.Frame, hopSeconds float64) *Features {
	features := &Features{
		Chroma:     make([]Vector, len(frames)),
		Bass:       make([]int, len(frames)),
		RawBass:    make([]int, len(frames)),
		Energy:     make([]float64, len(frames)),
		HopSeconds: hopSeconds,
	}

	for i, frame := range frames {
		features.Chroma[i] = e.Chroma(frame.Magnitude)
		features.RawBass[i] = e.Bass(frame.Magnitude)
		features.Energy[i] = frame.Energy
	}

	features.Bass = StabilizeBass(features.RawBass, features.Energy, e.config)

	retained := 0
	for _, b := range features.Bass {
		if b != NoBass {
			retained++
		}
	}

	e.logger.Debug("Chroma features extracted", logging.Fields{
		"frames":        len(frames),
		"bass_retained": retained,
	})

	return features
}
