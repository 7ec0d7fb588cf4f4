package tonal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-acordes/algorithms/chroma"
)

// recordingDecoder returns a single tonic segment for whatever key it is given
type recordingDecoder struct {
	calls []Key
	beams []int
	empty bool
}

func (d *recordingDecoder) Decode(features *chroma.Features, key Key, beamWidth int) Timeline {
	d.calls = append(d.calls, key)
	d.beams = append(d.beams, beamWidth)
	if d.empty {
		return Timeline{}
	}
	return Timeline{{Time: 0, Label: NewLabel(key.Root, ChordMajor), FrameIndex: 0}}
}

// alternatingJudge always proposes a key different from the active one
type alternatingJudge struct {
	calls int
}

func (j *alternatingJudge) Validate(timeline Timeline, numFrames int, active Key) (TonicHypothesis, bool) {
	j.calls++
	return TonicHypothesis{Root: (active.Root + 7) % 12, Mode: active.Mode, Score: 10, Confidence: 0.9}, true
}

type neverJudge struct{}

func (neverJudge) Validate(Timeline, int, Key) (TonicHypothesis, bool) {
	return TonicHypothesis{}, false
}

func TestRefinementCapHoldsUnderAdversarialJudge(t *testing.T) {
	decoder := &recordingDecoder{}
	loop := NewRefinementLoop(decoder, &alternatingJudge{}, DefaultRefineConfig())

	features := progression([]ChordLabel{major(0)}, 10, true)
	initial := Key{Root: 0, Mode: KeyModeMajor, Confidence: 0.9}
	state := NewRefinementState(initial, 2)

	result, err := loop.Run(context.Background(), features, initial, Timeline{{Label: major(0)}}, state)
	require.NoError(t, err)

	assert.Equal(t, 2, result.State.Changes)
	assert.Equal(t, 2, len(decoder.calls))
	assert.Equal(t, 2, result.Key.Root)
	assert.Equal(t, result.Key, result.State.LastKey)
	for _, b := range decoder.beams {
		assert.Equal(t, DefaultRefineConfig().FullBeam, b)
	}
}

func TestRefinementZeroCapRefusesEveryChange(t *testing.T) {
	decoder := &recordingDecoder{}
	loop := NewRefinementLoop(decoder, &alternatingJudge{}, DefaultRefineConfig())

	features := progression([]ChordLabel{major(0)}, 10, true)
	initial := Key{Root: 0, Mode: KeyModeMajor, Confidence: 0.9}

	result, err := loop.Run(context.Background(), features, initial, Timeline{{Label: major(0)}}, NewRefinementState(initial, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, result.State.Changes)
	assert.Equal(t, initial, result.Key)
	assert.Empty(t, decoder.calls)
}

func TestLowConfidenceTriggersFullBeamRerun(t *testing.T) {
	decoder := &recordingDecoder{}
	loop := NewRefinementLoop(decoder, neverJudge{}, DefaultRefineConfig())

	features := progression([]ChordLabel{major(0)}, 10, true)
	initial := Key{Root: 0, Mode: KeyModeMajor, Confidence: 0.4}

	result, err := loop.Run(context.Background(), features, initial, Timeline{{Label: minor(9)}}, NewRefinementState(initial, 2))
	require.NoError(t, err)
	require.Len(t, decoder.calls, 1)
	assert.Equal(t, 8, decoder.beams[0])
	assert.Equal(t, []string{"C"}, result.Timeline.Labels())
	assert.Equal(t, 0, result.State.Changes)
}

func TestLowConfidenceSkipsRerunAfterFullBeamDecode(t *testing.T) {
	decoder := &recordingDecoder{}
	loop := NewRefinementLoop(decoder, neverJudge{}, DefaultRefineConfig())

	features := progression([]ChordLabel{major(0)}, 10, true)
	initial := Key{Root: 0, Mode: KeyModeMajor, Confidence: 0.4}
	state := NewRefinementState(initial, 2)
	state.Beam = DefaultRefineConfig().FullBeam

	prior := Timeline{{Label: minor(9)}}
	result, err := loop.Run(context.Background(), features, initial, prior, state)
	require.NoError(t, err)
	assert.Empty(t, decoder.calls)
	assert.Equal(t, prior, result.Timeline)
}

func TestEmptyRedecodeReportsIteration(t *testing.T) {
	decoder := &recordingDecoder{empty: true}
	loop := NewRefinementLoop(decoder, &alternatingJudge{}, DefaultRefineConfig())

	features := progression([]ChordLabel{major(0)}, 10, true)
	initial := Key{Root: 0, Mode: KeyModeMajor, Confidence: 0.9}
	prior := Timeline{{Label: major(0)}}

	result, err := loop.Run(context.Background(), features, initial, prior, NewRefinementState(initial, 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyDecode)

	var refErr *RefinementError
	require.True(t, errors.As(err, &refErr))
	assert.Equal(t, 1, refErr.Iteration)
	assert.Equal(t, prior, result.Timeline)
	assert.Equal(t, initial, result.Key)
}

func TestRefinementHonoursCancellation(t *testing.T) {
	judge := &alternatingJudge{}
	loop := NewRefinementLoop(&recordingDecoder{}, judge, DefaultRefineConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	features := progression([]ChordLabel{major(0)}, 10, true)
	initial := Key{Root: 0, Mode: KeyModeMajor, Confidence: 0.9}
	_, err := loop.Run(ctx, features, initial, Timeline{{Label: major(0)}}, NewRefinementState(initial, 2))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, judge.calls)
}

func TestRefinementWithRealComponents(t *testing.T) {
	features := progression([]ChordLabel{major(0), major(5), major(7), major(0)}, 20, true)
	decoder := NewDecoder(DefaultScoringConfig(), 3)
	loop := NewRefinementLoop(decoder, NewTonicValidator(DefaultTonicConfig()), DefaultRefineConfig())

	// start from the relative minor; the decoded chords pull the key to C major
	initial := Key{Root: 9, Mode: KeyModeMinor, Confidence: 0.9}
	timeline := decoder.Decode(features, initial, 4)

	result, err := loop.Run(context.Background(), features, initial, timeline, NewRefinementState(initial, 2))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Key.Root)
	assert.Equal(t, KeyModeMajor, result.Key.Mode)
	assert.Equal(t, 1, result.State.Changes)
	assert.Equal(t, []string{"C", "F", "G", "C"}, result.Timeline.Labels())
}
