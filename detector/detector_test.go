package detector

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-acordes/algorithms/chroma"
	"github.com/RyanBlaney/sonido-acordes/algorithms/temporal"
	"github.com/RyanBlaney/sonido-acordes/algorithms/tonal"
	"github.com/RyanBlaney/sonido-acordes/transcode"
)

const testRate = 22050

func midiFreq(note int) float64 {
	return 440.0 * math.Pow(2, float64(note-69)/12.0)
}

// chordSignal renders each root as a major triad from C4 upward plus a bass
// note from C3 upward, secondsEach long
func chordSignal(rate int, roots []int, secondsEach float64) []float64 {
	perChord := int(secondsEach * float64(rate))
	out := make([]float64, 0, perChord*len(roots))
	for ci, root := range roots {
		freqs := []float64{
			midiFreq(48 + root),
			midiFreq(60 + root),
			midiFreq(64 + root),
			midiFreq(67 + root),
		}
		for i := range perChord {
			t := float64(ci*perChord+i) / float64(rate)
			v := 0.0
			for _, f := range freqs {
				v += 0.2 * math.Sin(2*math.Pi*f*t)
			}
			out = append(out, v)
		}
	}
	return out
}

func newTestDetector(t *testing.T) *Detector {
	t.Helper()
	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)
	return d
}

func TestDetectProgression(t *testing.T) {
	d := newTestDetector(t)
	audio := Audio{PCM: chordSignal(testRate, []int{0, 5, 7, 0}, 2), SampleRate: testRate, Channels: 1}

	result, err := d.Detect(context.Background(), audio, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"C", "F", "G", "C"}, result.Timeline.Labels())
	assert.Equal(t, 0, result.Key.Root)
	assert.Equal(t, tonal.KeyModeMajor, result.Key.Mode)
	assert.True(t, result.Timeline.WellFormed())
	assert.Equal(t, 79, result.Frames)
	assert.NotEmpty(t, result.RunID)
	assert.LessOrEqual(t, result.KeyChanges, 2)
}

func TestDetectProgressionReadsBass(t *testing.T) {
	d := newTestDetector(t)
	audio := Audio{PCM: chordSignal(testRate, []int{0, 5, 7, 0}, 2), SampleRate: testRate, Channels: 1}

	result, err := d.Detect(context.Background(), audio, nil)
	require.NoError(t, err)

	// mid-chord frames carry the root played an octave below the triad
	bass := result.Features.Bass
	require.Len(t, bass, result.Frames)
	assert.Equal(t, 0, bass[10])
	assert.Equal(t, 5, bass[30])
	assert.Equal(t, 7, bass[50])
	assert.Equal(t, 0, bass[70])

	assert.Equal(t, 0, result.InitialKey.Root)
	assert.Equal(t, tonal.KeyModeMajor, result.InitialKey.Mode)
	assert.Equal(t, 0, result.KeyChanges)
}

func TestDetectStereoMatchesMono(t *testing.T) {
	d := newTestDetector(t)
	rate := 44100
	mono := chordSignal(rate, []int{0, 5, 7, 0}, 2)
	stereo := make([]float64, 2*len(mono))
	for i, v := range mono {
		stereo[2*i] = v
		stereo[2*i+1] = v
	}

	monoResult, err := d.Detect(context.Background(), Audio{PCM: mono, SampleRate: rate, Channels: 1}, nil)
	require.NoError(t, err)
	stereoResult, err := d.Detect(context.Background(), Audio{PCM: stereo, SampleRate: rate, Channels: 2}, nil)
	require.NoError(t, err)

	assert.Equal(t, monoResult.Timeline.Labels(), stereoResult.Timeline.Labels())
	assert.Equal(t, monoResult.Key, stereoResult.Key)
	assert.Equal(t, monoResult.Frames, stereoResult.Frames)
}

func TestDetectCubicResample(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resample = transcode.ResampleCubic
	d, err := NewDetector(cfg)
	require.NoError(t, err)

	rate := 44100
	audio := Audio{PCM: chordSignal(rate, []int{0, 5, 7, 0}, 2), SampleRate: rate, Channels: 1}
	result, err := d.Detect(context.Background(), audio, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"C", "F", "G", "C"}, result.Timeline.Labels())
	assert.Equal(t, 0, result.Key.Root)
	assert.Equal(t, tonal.KeyModeMajor, result.Key.Mode)
}

func TestDetectSilence(t *testing.T) {
	d := newTestDetector(t)
	audio := Audio{PCM: make([]float64, 3*testRate), SampleRate: testRate, Channels: 1}

	result, err := d.Detect(context.Background(), audio, nil)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(result.Timeline), 1)
	assert.LessOrEqual(t, result.Key.Confidence, 0.5)
	assert.False(t, result.Tempo.Known())
}

func TestDetectShortAudio(t *testing.T) {
	d := newTestDetector(t)
	audio := Audio{PCM: make([]float64, 1000), SampleRate: testRate, Channels: 1}

	result, err := d.Detect(context.Background(), audio, nil)
	require.NoError(t, err)

	assert.Empty(t, result.Timeline)
	assert.Equal(t, tonal.DefaultKey(), result.Key)
	assert.Equal(t, 0, result.Frames)
}

func TestDetectInvalidAudio(t *testing.T) {
	d := newTestDetector(t)
	cases := map[string]Audio{
		"nil pcm":          {PCM: nil, SampleRate: testRate, Channels: 1},
		"zero rate":        {PCM: []float64{0}, SampleRate: 0, Channels: 1},
		"negative rate":    {PCM: []float64{0}, SampleRate: -44100, Channels: 1},
		"no channels":      {PCM: []float64{0}, SampleRate: testRate, Channels: 0},
		"channel mismatch": {PCM: []float64{0, 0, 0}, SampleRate: testRate, Channels: 2},
	}

	for name, audio := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := d.Detect(context.Background(), audio, nil)
			assert.ErrorIs(t, err, ErrInvalidAudio)
		})
	}
}

func TestDetectCancelled(t *testing.T) {
	d := newTestDetector(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	audio := Audio{PCM: chordSignal(testRate, []int{0}, 1), SampleRate: testRate, Channels: 1}
	_, err := d.Detect(ctx, audio, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectReportsProgress(t *testing.T) {
	d := newTestDetector(t)
	var events []Progress
	opts := &Options{Progress: func(p Progress) { events = append(events, p) }}

	audio := Audio{PCM: chordSignal(testRate, []int{0, 7}, 1), SampleRate: testRate, Channels: 1}
	_, err := d.Detect(context.Background(), audio, opts)
	require.NoError(t, err)

	require.Len(t, events, 5)
	stages := make([]Stage, len(events))
	for i, e := range events {
		stages[i] = e.Stage
		if i > 0 {
			assert.Greater(t, e.Progress, events[i-1].Progress)
		}
	}
	assert.Equal(t, []Stage{StageFeatures, StageKey, StageDecode, StageRefine, StageDecorate}, stages)
	assert.Equal(t, 1.0, events[len(events)-1].Progress)
}

func TestDetectKeyHint(t *testing.T) {
	d := newTestDetector(t)
	hint, err := tonal.ParseKey("A minor")
	require.NoError(t, err)

	audio := Audio{PCM: chordSignal(testRate, []int{0, 5, 7, 0}, 2), SampleRate: testRate, Channels: 1}
	result, err := d.Detect(context.Background(), audio, &Options{KeyHint: &hint})
	require.NoError(t, err)

	assert.Equal(t, hint, result.Key)
	assert.Equal(t, hint, result.InitialKey)
	assert.Equal(t, 0, result.KeyChanges)
	assert.NotEmpty(t, result.Timeline)
}

func TestDetectBeamOverride(t *testing.T) {
	d := newTestDetector(t)
	audio := Audio{PCM: chordSignal(testRate, []int{0, 5, 7, 0}, 2), SampleRate: testRate, Channels: 1}

	full, err := d.Detect(context.Background(), audio, &Options{Beam: BeamFull})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "F", "G", "C"}, full.Timeline.Labels())
	assert.Equal(t, 0, full.Key.Root)
	assert.Equal(t, tonal.KeyModeMajor, full.Key.Mode)

	_, err = d.Detect(context.Background(), audio, &Options{Beam: "wide"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

type failingDecorator struct{}

func (failingDecorator) Name() string { return "failing" }

func (failingDecorator) Decorate(tonal.Timeline, *chroma.Features) (tonal.Timeline, error) {
	return nil, errors.New("boom")
}

func TestDetectDecoratorFallback(t *testing.T) {
	plain := newTestDetector(t)
	failing := newTestDetector(t)
	failing.AddDecorator(failingDecorator{})

	audio := Audio{PCM: chordSignal(testRate, []int{0, 5, 7, 0}, 2), SampleRate: testRate, Channels: 1}
	want, err := plain.Detect(context.Background(), audio, nil)
	require.NoError(t, err)
	got, err := failing.Detect(context.Background(), audio, nil)
	require.NoError(t, err)

	assert.Equal(t, want.Timeline.Labels(), got.Timeline.Labels())
}

func tempoAt(bpm float64) temporal.Tempo {
	return temporal.Tempo{BPM: bpm, Confidence: 1}
}

func TestMinSegmentFrames(t *testing.T) {
	d := newTestDetector(t)

	// half a beat bounded to [0.2, 1.0] s at 0.1 s per frame
	assert.Equal(t, 3, d.minSegmentFrames(tempoAt(0)))
	assert.Equal(t, 3, d.minSegmentFrames(tempoAt(100)))
	assert.Equal(t, 5, d.minSegmentFrames(tempoAt(60)))
	assert.Equal(t, 2, d.minSegmentFrames(tempoAt(180)))
	assert.Equal(t, 10, d.minSegmentFrames(tempoAt(20)))
}
