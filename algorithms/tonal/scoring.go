package tonal

import (
	"errors"
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-acordes/algorithms/chroma"
	"github.com/RyanBlaney/sonido-acordes/algorithms/common"
)

// ErrInvalidScoringConfig reports unusable weights or beam widths
var ErrInvalidScoringConfig = errors.New("invalid scoring configuration")

// ScoringConfig holds every weight used by the chord decoder
type ScoringConfig struct {
	// Emission
	DiatonicBonus            float64 `json:"diatonic_bonus"`
	BorrowedPenalty          float64 `json:"borrowed_penalty"`
	BassBonus                float64 `json:"bass_bonus"`
	BassMultiplier           float64 `json:"bass_multiplier"`
	BassPartialCredit        float64 `json:"bass_partial_credit"` // bass on the third or fifth
	BassContradictionPenalty float64 `json:"bass_contradiction_penalty"`
	LowEnergyPercentile      float64 `json:"low_energy_percentile"`
	LowEnergyPenalty         float64 `json:"low_energy_penalty"`
	CosineFloor              float64 `json:"cosine_floor"` // below this a state is impossible

	// Transition
	TransitionScale         float64 `json:"transition_scale"`
	FifthsWeight            float64 `json:"fifths_weight"`
	ChromaticWeight         float64 `json:"chromatic_weight"`
	QualityChangePenalty    float64 `json:"quality_change_penalty"`
	BorrowedEndpointPenalty float64 `json:"borrowed_endpoint_penalty"` // per borrowed endpoint
	FunctionalDiscount      float64 `json:"functional_discount"`       // V-I, IV-V, ii-V, IV-I
	DescendingFifthDiscount float64 `json:"descending_fifth_discount"`

	// Search
	NarrowBeam int `json:"narrow_beam"`
	FullBeam   int `json:"full_beam"`
}

// DefaultScoringConfig returns the tuned default weights
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		DiatonicBonus:            0.05,
		BorrowedPenalty:          0.08,
		BassBonus:                0.10,
		BassMultiplier:           1.0,
		BassPartialCredit:        0.04,
		BassContradictionPenalty: 0.06,
		LowEnergyPercentile:      10.0,
		LowEnergyPenalty:         0.05,
		CosineFloor:              0.3,

		TransitionScale:         0.15,
		FifthsWeight:            0.7,
		ChromaticWeight:         0.3,
		QualityChangePenalty:    0.05,
		BorrowedEndpointPenalty: 0.08,
		FunctionalDiscount:      0.06,
		DescendingFifthDiscount: 0.03,

		NarrowBeam: 4,
		FullBeam:   8,
	}
}

// Validate checks beam widths and ranges
func (c ScoringConfig) Validate() error {
	if c.NarrowBeam < 1 || c.FullBeam < 1 {
		return fmt.Errorf("%w: beam widths must be at least 1 (narrow %d, full %d)", ErrInvalidScoringConfig, c.NarrowBeam, c.FullBeam)
	}
	if c.CosineFloor < -1 || c.CosineFloor > 1 {
		return fmt.Errorf("%w: cosine floor %.2f outside [-1, 1]", ErrInvalidScoringConfig, c.CosineFloor)
	}
	if c.LowEnergyPercentile < 0 || c.LowEnergyPercentile > 100 {
		return fmt.Errorf("%w: low energy percentile %.1f outside [0, 100]", ErrInvalidScoringConfig, c.LowEnergyPercentile)
	}
	if c.BassMultiplier < 0 {
		return fmt.Errorf("%w: bass multiplier must not be negative", ErrInvalidScoringConfig)
	}
	return nil
}

// adjustment returns every emission term except the cosine similarity
func (c ScoringConfig) adjustment(cand ChordCandidate, bass int, lowEnergy bool) float64 {
	adj := 0.0
	if cand.Borrowed {
		adj -= c.BorrowedPenalty
	} else {
		adj += c.DiatonicBonus
	}

	if bass != chroma.NoBass {
		label := cand.Label()
		switch bass {
		case label.Root:
			adj += c.BassMultiplier * c.BassBonus
		case label.Third(), label.Fifth():
			adj += c.BassPartialCredit
		default:
			adj -= c.BassContradictionPenalty
		}
	}

	if lowEnergy {
		adj -= c.LowEnergyPenalty
	}
	return adj
}

// Emission scores a candidate against one frame. Frames whose cosine
// similarity falls below the floor are impossible for the candidate.
func (c ScoringConfig) Emission(v chroma.Vector, cand ChordCandidate, bass int, lowEnergy bool) float64 {
	mask := cand.Template()
	cos := common.CosineSimilarity(v[:], mask[:])
	if cos < c.CosineFloor {
		return math.Inf(-1)
	}
	return cos + c.adjustment(cand, bass, lowEnergy)
}

// fallbackEmission is used for columns where every candidate fell below the
// cosine floor
func (c ScoringConfig) fallbackEmission(v chroma.Vector, cand ChordCandidate, bass int, lowEnergy bool) float64 {
	mask := cand.Template()
	return common.CosineSimilarity(v[:], mask[:]) + c.adjustment(cand, bass, lowEnergy)
}

var fifthsPosition = func() [12]int {
	var pos [12]int
	for i := range 12 {
		pos[(i*7)%12] = i
	}
	return pos
}()

// FifthsDistance is the shortest distance between two roots on the circle of fifths (0..6)
func FifthsDistance(a, b int) int {
	d := fifthsPosition[common.PitchClass(a)] - fifthsPosition[common.PitchClass(b)]
	return circularDistance(d)
}

// ChromaticDistance is the shortest semitone distance between two roots (0..6)
func ChromaticDistance(a, b int) int {
	return circularDistance(a - b)
}

func circularDistance(d int) int {
	d = common.PitchClass(d)
	if d > 6 {
		return 12 - d
	}
	return d
}

// Transition returns the non-negative cost of moving from a to b in key k.
// Staying on the same state is free.
func (c ScoringConfig) Transition(a, b ChordCandidate, k Key) float64 {
	if a.Root == b.Root && a.Quality == b.Quality {
		return 0
	}

	cost := c.TransitionScale * (c.FifthsWeight*float64(FifthsDistance(a.Root, b.Root))/6.0 +
		c.ChromaticWeight*float64(ChromaticDistance(a.Root, b.Root))/6.0)

	if a.Quality != b.Quality {
		cost += c.QualityChangePenalty
	}
	if a.Borrowed {
		cost += c.BorrowedEndpointPenalty
	}
	if b.Borrowed {
		cost += c.BorrowedEndpointPenalty
	}

	from := common.PitchClass(a.Root - k.Root)
	to := common.PitchClass(b.Root - k.Root)
	switch {
	case from == 7 && to == 0, // V-I
		from == 5 && to == 7, // IV-V
		from == 2 && to == 7, // ii-V
		from == 5 && to == 0: // IV-I
		cost -= c.FunctionalDiscount
	}

	if common.PitchClass(b.Root-a.Root) == 5 {
		cost -= c.DescendingFifthDiscount
	}

	return math.Max(cost, 0)
}
