package tonal

import (
	"math"

	"github.com/RyanBlaney/sonido-acordes/algorithms/common"
	"github.com/RyanBlaney/sonido-acordes/logging"
)

// TonicHypothesis is a scored key proposal derived from a decoded timeline
type TonicHypothesis struct {
	Root       int     `json:"root"`
	Mode       KeyMode `json:"mode"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"` // best / (best + runner-up); informational
}

// Key converts the hypothesis into a Key carrying its confidence
func (h TonicHypothesis) Key() Key {
	return Key{Root: h.Root, Mode: h.Mode, Confidence: h.Confidence}
}

// TonicConfig weights the evidence used to score a tonic
type TonicConfig struct {
	TonicWeight         float64 `json:"tonic_weight"`
	TonicQualityBonus   float64 `json:"tonic_quality_bonus"`   // tonic chord matches the mode
	TonicQualityPenalty float64 `json:"tonic_quality_penalty"` // tonic chord contradicts the mode
	DominantWeight      float64 `json:"dominant_weight"`
	SubdominantWeight   float64 `json:"subdominant_weight"`
	DiatonicWeight      float64 `json:"diatonic_weight"` // any other root in the scale
	FirstSegmentBonus   float64 `json:"first_segment_bonus"`
	LastSegmentBonus    float64 `json:"last_segment_bonus"`
	CadenceBonus        float64 `json:"cadence_bonus"`      // per V-I or IV-I landing on the tonic
	MinDiatonicShare    float64 `json:"min_diatonic_share"` // veto below this share of duration
	RootChangeMargin    float64 `json:"root_change_margin"`
	ModeChangeMargin    float64 `json:"mode_change_margin"`
}

// DefaultTonicConfig returns the default tonic scoring weights
func DefaultTonicConfig() TonicConfig {
	return TonicConfig{
		TonicWeight:         1.0,
		TonicQualityBonus:   0.2,
		TonicQualityPenalty: 0.3,
		DominantWeight:      0.45,
		SubdominantWeight:   0.35,
		DiatonicWeight:      0.1,
		FirstSegmentBonus:   0.15,
		LastSegmentBonus:    0.15,
		CadenceBonus:        0.1,
		MinDiatonicShare:    0.65,
		RootChangeMargin:    0.15,
		ModeChangeMargin:    0.30,
	}
}

// TonicJudge decides whether a decoded timeline supports a different key
type TonicJudge interface {
	Validate(timeline Timeline, numFrames int, active Key) (TonicHypothesis, bool)
}

// TonicValidator scores all 24 keys against a timeline
type TonicValidator struct {
	config TonicConfig
	logger logging.Logger
}

// NewTonicValidator creates a new tonic validator
func NewTonicValidator(config TonicConfig) *TonicValidator {
	return &TonicValidator{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "tonic_validator",
		}),
	}
}

// Score rates how well the timeline supports (root, mode). Frame counts stand
// in for durations. Timelines with too little diatonic material are vetoed
// with -Inf.
func (tv *TonicValidator) Score(timeline Timeline, numFrames int, root int, mode KeyMode) float64 {
	if len(timeline) == 0 {
		return math.Inf(-1)
	}

	frames := timeline.SegmentFrames(numFrames)
	total := 0
	for _, f := range frames {
		total += f
	}
	if total <= 0 {
		return math.Inf(-1)
	}

	wantQuality := tonicQuality(mode)

	weighted := 0.0
	diatonic := 0
	for i, seg := range timeline {
		d := float64(frames[i])
		inScale := InScale(seg.Label.Root, root, mode)
		if inScale {
			diatonic += frames[i]
		}

		switch common.PitchClass(seg.Label.Root - root) {
		case 0:
			w := tv.config.TonicWeight
			if seg.Label.Quality == wantQuality {
				w += tv.config.TonicQualityBonus
			} else {
				w -= tv.config.TonicQualityPenalty
			}
			weighted += w * d
		case 7:
			weighted += tv.config.DominantWeight * d
		case 5:
			weighted += tv.config.SubdominantWeight * d
		default:
			if inScale {
				weighted += tv.config.DiatonicWeight * d
			}
		}
	}

	if float64(diatonic)/float64(total) < tv.config.MinDiatonicShare {
		return math.Inf(-1)
	}

	score := weighted / float64(total)

	if timeline[0].Label.Root == root {
		score += tv.config.FirstSegmentBonus
	}
	if timeline[len(timeline)-1].Label.Root == root {
		score += tv.config.LastSegmentBonus
	}

	for i := 1; i < len(timeline); i++ {
		if timeline[i].Label.Root != root {
			continue
		}
		switch common.PitchClass(timeline[i-1].Label.Root - root) {
		case 7, 5:
			score += tv.config.CadenceBonus
		}
	}

	return score
}

// Best returns the highest scoring of the 24 keys. Ties keep the earlier key
// in C..B, major-before-minor order.
func (tv *TonicValidator) Best(timeline Timeline, numFrames int) TonicHypothesis {
	best := TonicHypothesis{Score: math.Inf(-1)}
	runnerUp := math.Inf(-1)

	for root := range 12 {
		for _, mode := range []KeyMode{KeyModeMajor, KeyModeMinor} {
			s := tv.Score(timeline, numFrames, root, mode)
			switch {
			case s > best.Score:
				runnerUp = best.Score
				best = TonicHypothesis{Root: root, Mode: mode, Score: s}
			case s > runnerUp:
				runnerUp = s
			}
		}
	}

	switch {
	case math.IsInf(best.Score, -1):
		best.Confidence = 0
	case math.IsInf(runnerUp, -1):
		best.Confidence = 1
	default:
		best.Confidence = best.Score / common.SafeDivisor(best.Score+runnerUp)
	}
	return best
}

// Validate returns the best hypothesis and whether it should replace the
// active key. A mode change needs a larger margin than a root change.
func (tv *TonicValidator) Validate(timeline Timeline, numFrames int, active Key) (TonicHypothesis, bool) {
	best := tv.Best(timeline, numFrames)
	if math.IsInf(best.Score, -1) {
		return best, false
	}
	if best.Root == active.Root && best.Mode == active.Mode {
		return best, false
	}

	activeScore := tv.Score(timeline, numFrames, active.Root, active.Mode)
	if math.IsInf(activeScore, -1) {
		return best, true
	}

	// the mode margin only guards against tonic triads that point both ways
	margin := tv.config.RootChangeMargin
	if best.Mode != active.Mode && mixedTonicEvidence(timeline, numFrames, best, active) {
		margin = tv.config.ModeChangeMargin
	}
	adopt := best.Score > activeScore+margin*math.Max(math.Abs(activeScore), 1)

	tv.logger.Debug("Tonic hypothesis evaluated", logging.Fields{
		"active":       active.Name(),
		"active_score": activeScore,
		"best":         GetKeyName(best.Root, best.Mode),
		"best_score":   best.Score,
		"adopt":        adopt,
	})

	return best, adopt
}

func tonicQuality(mode KeyMode) ChordQuality {
	if mode == KeyModeMinor {
		return ChordMinor
	}
	return ChordMajor
}

// mixedTonicEvidence reports whether any tonic triad of the proposed key has
// the other quality, or any tonic triad of the active key matches its mode
func mixedTonicEvidence(timeline Timeline, numFrames int, best TonicHypothesis, active Key) bool {
	frames := timeline.SegmentFrames(numFrames)
	for i, seg := range timeline {
		if frames[i] <= 0 {
			continue
		}
		if seg.Label.Root == best.Root && seg.Label.Quality != tonicQuality(best.Mode) {
			return true
		}
		if seg.Label.Root == active.Root && seg.Label.Quality == tonicQuality(active.Mode) {
			return true
		}
	}
	return false
}
