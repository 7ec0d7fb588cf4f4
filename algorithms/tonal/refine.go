package tonal

import (
	"context"
	"errors"
	"fmt"

	"github.com/RyanBlaney/sonido-acordes/algorithms/chroma"
	"github.com/RyanBlaney/sonido-acordes/logging"
)

// ErrEmptyDecode is reported when a re-decode of non-empty features yields no segments
var ErrEmptyDecode = errors.New("decoder returned an empty timeline")

// RefinementError records which iteration of the loop failed
type RefinementError struct {
	Iteration int
	Err       error
}

func (e *RefinementError) Error() string {
	return fmt.Sprintf("refinement iteration %d: %v", e.Iteration, e.Err)
}

func (e *RefinementError) Unwrap() error {
	return e.Err
}

// RefinementState is threaded through the loop and returned to the caller.
// It is the only place the number of key changes is counted.
type RefinementState struct {
	Changes    int `json:"changes"`
	MaxChanges int `json:"max_changes"`
	LastKey    Key `json:"last_key"` // key active after the latest change
	Beam       int `json:"beam"`     // beam width the incoming timeline was decoded with, 0 if unknown
}

// NewRefinementState starts a run with no changes
func NewRefinementState(initial Key, maxChanges int) RefinementState {
	return RefinementState{MaxChanges: maxChanges, LastKey: initial}
}

// CanChange reports whether another key change is allowed
func (s RefinementState) CanChange() bool {
	return s.Changes < s.MaxChanges
}

// RefineConfig bounds the refinement loop
type RefineConfig struct {
	MaxChanges   int     `json:"max_changes"`
	RerunTrigger float64 `json:"rerun_trigger"` // initial confidence below this forces a full-beam re-decode
	FullBeam     int     `json:"full_beam"`
}

// DefaultRefineConfig allows two key changes per run
func DefaultRefineConfig() RefineConfig {
	return RefineConfig{
		MaxChanges:   2,
		RerunTrigger: 0.75,
		FullBeam:     8,
	}
}

// RefinementLoop re-decodes the features whenever the decoded chords support
// a different key, up to MaxChanges times
type RefinementLoop struct {
	decoder   ChordDecoder
	validator TonicJudge
	config    RefineConfig
	logger    logging.Logger
}

// NewRefinementLoop creates a loop over the given decoder and validator
func NewRefinementLoop(decoder ChordDecoder, validator TonicJudge, config RefineConfig) *RefinementLoop {
	return &RefinementLoop{
		decoder:   decoder,
		validator: validator,
		config:    config,
		logger: logging.WithFields(logging.Fields{
			"component": "refinement_loop",
		}),
	}
}

// RefinementResult is the outcome of a refinement run
type RefinementResult struct {
	Key      Key
	Timeline Timeline
	State    RefinementState
}

// Run refines key and timeline. The returned result always holds the last
// good key and timeline, also when an error is returned, so callers can fall
// back to it. Cancellation is checked between iterations.
func (rl *RefinementLoop) Run(ctx context.Context, features *chroma.Features, key Key, timeline Timeline, state RefinementState) (RefinementResult, error) {
	result := RefinementResult{Key: key, Timeline: timeline, State: state}
	numFrames := features.NumFrames()
	if numFrames == 0 {
		return result, nil
	}

	if key.Confidence < rl.config.RerunTrigger && state.Beam < rl.config.FullBeam {
		rerun := rl.decoder.Decode(features, key, rl.config.FullBeam)
		if len(rerun) == 0 {
			return result, &RefinementError{Iteration: 0, Err: ErrEmptyDecode}
		}
		result.Timeline = rerun
		rl.logger.Debug("Low key confidence, re-decoded at full beam", logging.Fields{
			"key":        key.Name(),
			"confidence": key.Confidence,
			"beam_width": rl.config.FullBeam,
		})
	}

	for iteration := 1; ; iteration++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		hypothesis, adopt := rl.validator.Validate(result.Timeline, numFrames, result.Key)
		if !adopt {
			break
		}

		proposed := hypothesis.Key()
		if !result.State.CanChange() {
			rl.logger.Info("Key change refused, limit reached", logging.Fields{
				"active":      result.Key.Name(),
				"proposed":    proposed.Name(),
				"changes":     result.State.Changes,
				"max_changes": result.State.MaxChanges,
			})
			break
		}

		redecoded := rl.decoder.Decode(features, proposed, rl.config.FullBeam)
		if len(redecoded) == 0 {
			return result, &RefinementError{Iteration: iteration, Err: ErrEmptyDecode}
		}

		rl.logger.Info("Key changed", logging.Fields{
			"from":      result.Key.Name(),
			"to":        proposed.Name(),
			"score":     hypothesis.Score,
			"iteration": iteration,
		})

		result.Key = proposed
		result.Timeline = redecoded
		result.State.Changes++
		result.State.LastKey = proposed
	}

	return result, nil
}
