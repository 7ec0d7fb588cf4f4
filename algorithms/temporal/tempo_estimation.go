package temporal

import (
	"github.com/RyanBlaney/sonido-acordes/logging"
)

// Tempo is an estimated beat rate. BPM is 0 when no periodicity was found.
type Tempo struct {
	BPM        float64 `json:"bpm"`
	Confidence float64 `json:"confidence"` // normalized autocorrelation at the chosen lag
}

// Known reports whether a tempo was found
func (t Tempo) Known() bool {
	return t.BPM > 0
}

// BeatSeconds returns the beat period, or 0 when the tempo is unknown
func (t Tempo) BeatSeconds() float64 {
	if !t.Known() {
		return 0
	}
	return 60.0 / t.BPM
}

// TempoConfig bounds the tempo search
type TempoConfig struct {
	FrameSeconds float64 `json:"frame_seconds"` // RMS frame length
	MinBPM       float64 `json:"min_bpm"`
	MaxBPM       float64 `json:"max_bpm"`
}

// DefaultTempoConfig searches 60-180 BPM over 100 ms RMS frames
func DefaultTempoConfig() TempoConfig {
	return TempoConfig{
		FrameSeconds: 0.1,
		MinBPM:       60.0,
		MaxBPM:       180.0,
	}
}

// TempoEstimation estimates tempo from the autocorrelation of the energy envelope
type TempoEstimation struct {
	config            TempoConfig
	envelopeExtractor *Envelope
	logger            logging.Logger
}

// NewTempoEstimation creates a new tempo estimator
func NewTempoEstimation(config TempoConfig) *TempoEstimation {
	return &TempoEstimation{
		config:            config,
		envelopeExtractor: NewEnvelope(),
		logger: logging.WithFields(logging.Fields{
			"component": "tempo_estimation",
		}),
	}
}

// EstimateTempoAutocorrelation estimates tempo using autocorrelation of energy.
// Short or aperiodic signals yield an unknown Tempo.
func (te *TempoEstimation) EstimateTempoAutocorrelation(signal []float64, sampleRate int) Tempo {
	if len(signal) == 0 || sampleRate <= 0 {
		return Tempo{}
	}

	// 100ms frames for beat analysis, 75% overlap
	frameSize := int(te.config.FrameSeconds * float64(sampleRate))
	hopSize := frameSize / 4

	envelope := te.envelopeExtractor.ComputeRMS(signal, frameSize, hopSize)
	if len(envelope) < 10 {
		return Tempo{}
	}
	te.envelopeExtractor.RemoveMean(envelope)

	maxLag := len(envelope) / 2
	autocorr := te.calculateAutocorrelation(envelope, maxLag)

	tempo := te.findTempoFromAutocorrelation(autocorr, hopSize, sampleRate)

	te.logger.Debug("Tempo estimated", logging.Fields{
		"bpm":        tempo.BPM,
		"confidence": tempo.Confidence,
		"frames":     len(envelope),
	})

	return tempo
}

// calculateAutocorrelation computes the biased autocorrelation normalized by
// lag zero, so longer lags are damped and the fundamental period wins over
// its multiples.
func (te *TempoEstimation) calculateAutocorrelation(signal []float64, maxLag int) []float64 {
	if maxLag > len(signal) {
		maxLag = len(signal)
	}

	autocorr := make([]float64, maxLag)
	n := float64(len(signal))

	for lag := range maxLag {
		sum := 0.0
		for i := 0; i < len(signal)-lag; i++ {
			sum += signal[i] * signal[i+lag]
		}
		autocorr[lag] = sum / n
	}

	if len(autocorr) > 0 && autocorr[0] > 0 {
		zero := autocorr[0]
		for i := range autocorr {
			autocorr[i] /= zero
		}
	}

	return autocorr
}

// findTempoFromAutocorrelation picks the highest local maximum whose period
// falls inside the configured BPM range
func (te *TempoEstimation) findTempoFromAutocorrelation(autocorr []float64, hopSize int, sampleRate int) Tempo {
	if len(autocorr) < 10 {
		return Tempo{}
	}

	timePerFrame := float64(hopSize) / float64(sampleRate)

	minPeriodSec := 60.0 / te.config.MaxBPM
	maxPeriodSec := 60.0 / te.config.MinBPM

	minLag := int(minPeriodSec / timePerFrame)
	maxLag := int(maxPeriodSec / timePerFrame)

	if minLag < 1 {
		minLag = 1
	}
	if maxLag >= len(autocorr)-1 {
		maxLag = len(autocorr) - 2
	}

	maxVal := 0.0
	bestLag := 0

	for lag := minLag; lag <= maxLag; lag++ {
		if autocorr[lag] > autocorr[lag-1] &&
			autocorr[lag] > autocorr[lag+1] &&
			autocorr[lag] > maxVal {
			maxVal = autocorr[lag]
			bestLag = lag
		}
	}

	if bestLag == 0 {
		return Tempo{}
	}

	period := float64(bestLag) * timePerFrame
	return Tempo{
		BPM:        60.0 / period,
		Confidence: maxVal,
	}
}
