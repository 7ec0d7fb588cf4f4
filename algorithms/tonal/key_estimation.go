package tonal

import (
	"math"

	"github.com/RyanBlaney/sonido-acordes/algorithms/chroma"
	"github.com/RyanBlaney/sonido-acordes/algorithms/common"
	"github.com/RyanBlaney/sonido-acordes/logging"
)

// Krumhansl-Schmuckler key profiles, indexed by interval above the tonic
var (
	krumhanslMajor = [12]float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	krumhanslMinor = [12]float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

// KeyConfig holds the thresholds of the key estimator
type KeyConfig struct {
	EnergyPercentile    float64 `json:"energy_percentile"`     // frames below are ignored for the bass histogram
	EnergyGateTolerance float64 `json:"energy_gate_tolerance"` // relaxes the percentile gate
	BassConfidenceFloor float64 `json:"bass_confidence_floor"` // above this the bass picks the root
	ModeRatio           float64 `json:"mode_ratio"`            // degree comparisons must exceed this ratio
	EdgeFraction        float64 `json:"edge_fraction"`         // opening/closing share weighted double
	EdgeWeight          float64 `json:"edge_weight"`
	ThirdWeight         float64 `json:"third_weight"`
	SixthWeight         float64 `json:"sixth_weight"`
	SeventhWeight       float64 `json:"seventh_weight"`
}

// DefaultKeyConfig returns the default key estimation thresholds
func DefaultKeyConfig() KeyConfig {
	return KeyConfig{
		EnergyPercentile:    80.0,
		EnergyGateTolerance: 0.05,
		BassConfidenceFloor: 0.3,
		ModeRatio:           1.05,
		EdgeFraction:        0.1,
		EdgeWeight:          2.0,
		ThirdWeight:         0.6,
		SixthWeight:         0.2,
		SeventhWeight:       0.2,
	}
}

// KeyEstimator estimates the global key from bass and chroma statistics
type KeyEstimator struct {
	config KeyConfig
	logger logging.Logger
}

// NewKeyEstimator creates a new key estimator
func NewKeyEstimator(config KeyConfig) *KeyEstimator {
	return &KeyEstimator{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "key_estimator",
		}),
	}
}

// Estimate returns the key of the track. The bass histogram decides the root
// when it is confident enough; otherwise the Krumhansl-Schmuckler profiles
// decide root and mode together. It never fails: degenerate input yields
// DefaultKey.
func (ke *KeyEstimator) Estimate(features *chroma.Features) Key {
	weighted := ke.weightedChroma(features)
	if common.Sum(weighted[:]) < common.Epsilon {
		ke.logger.Debug("Chroma is empty, using default key")
		return DefaultKey()
	}

	histogram, total := ke.bassHistogram(features)
	if total > 0 {
		peak := common.ArgMax(histogram[:])
		bassConfidence := histogram[peak] / total
		if bassConfidence > ke.config.BassConfidenceFloor {
			key := ke.keyFromBass(peak, bassConfidence, histogram, total, weighted)
			ke.logger.Debug("Key estimated from bass", logging.Fields{
				"key":             key.Name(),
				"confidence":      key.Confidence,
				"bass_confidence": bassConfidence,
			})
			return key
		}
	}

	key := ke.keyFromProfiles(weighted)
	ke.logger.Debug("Key estimated from profiles", logging.Fields{
		"key":        key.Name(),
		"confidence": key.Confidence,
	})
	return key
}

// weightedChroma sums energy-weighted chroma, counting the opening and
// closing EdgeFraction of the frames EdgeWeight times
func (ke *KeyEstimator) weightedChroma(features *chroma.Features) [12]float64 {
	var out [12]float64
	n := features.NumFrames()
	if n == 0 {
		return out
	}

	edge := int(math.Ceil(ke.config.EdgeFraction * float64(n)))
	if edge < 1 {
		edge = 1
	}

	for t, v := range features.Chroma {
		w := features.Energy[t]
		if t < edge || t >= n-edge {
			w *= ke.config.EdgeWeight
		}
		for pc := range out {
			out[pc] += w * v[pc]
		}
	}
	return out
}

// bassHistogram accumulates frame energy per stabilized bass pitch class
// over the loudest frames
func (ke *KeyEstimator) bassHistogram(features *chroma.Features) ([12]float64, float64) {
	var histogram [12]float64
	gate := (1 - ke.config.EnergyGateTolerance) * common.Percentile(features.Energy, ke.config.EnergyPercentile)

	total := 0.0
	for t, b := range features.Bass {
		if b == chroma.NoBass || features.Energy[t] < gate {
			continue
		}
		histogram[b] += features.Energy[t]
		total += features.Energy[t]
	}
	return histogram, total
}

// degreeEvidence returns +w when the minor-side degree dominates, -w when the
// major-side degree does, 0 otherwise
func (ke *KeyEstimator) degreeEvidence(minorSide, majorSide, w float64) float64 {
	switch {
	case minorSide > majorSide*ke.config.ModeRatio:
		return w
	case majorSide > minorSide*ke.config.ModeRatio:
		return -w
	default:
		return 0
	}
}

func (ke *KeyEstimator) keyFromBass(root int, bassConfidence float64, histogram [12]float64, total float64, weighted [12]float64) Key {
	at := func(interval int) float64 { return weighted[common.PitchClass(root+interval)] }

	evidence := ke.degreeEvidence(at(3), at(4), ke.config.ThirdWeight) +
		ke.degreeEvidence(at(8), at(9), ke.config.SixthWeight) +
		ke.degreeEvidence(at(10), at(11), ke.config.SeventhWeight)

	mode := KeyModeMajor
	if evidence > 0 {
		mode = KeyModeMinor
	}

	separation := math.Abs(at(3)-at(4)) / common.SafeDivisor(at(3)+at(4))

	runnerUp := 0.0
	for pc, v := range histogram {
		if pc != root && v > runnerUp {
			runnerUp = v
		}
	}
	spread := (histogram[root] - runnerUp) / total

	confidence := common.Clamp(0.5*bassConfidence+0.3*separation+0.2*spread, 0, 1)
	return Key{Root: root, Mode: mode, Confidence: confidence}
}

// keyFromProfiles correlates the chroma profile with the 24 rotated
// Krumhansl-Schmuckler profiles
func (ke *KeyEstimator) keyFromProfiles(weighted [12]float64) Key {
	best := Key{Root: 0, Mode: KeyModeMajor, Confidence: 0.5}
	bestR := math.Inf(-1)

	rotated := make([]float64, 12)
	for _, mode := range []KeyMode{KeyModeMajor, KeyModeMinor} {
		profile := krumhanslMajor
		if mode == KeyModeMinor {
			profile = krumhanslMinor
		}
		for root := range 12 {
			for pc := range 12 {
				rotated[pc] = profile[common.PitchClass(pc-root)]
			}
			r := common.Correlation(weighted[:], rotated)
			if r > bestR {
				bestR = r
				best = Key{Root: root, Mode: mode}
			}
		}
	}

	best.Confidence = common.Clamp((bestR+1)/2, 0, 1)
	return best
}
