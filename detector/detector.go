package detector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/RyanBlaney/sonido-acordes/algorithms/chroma"
	"github.com/RyanBlaney/sonido-acordes/algorithms/common"
	"github.com/RyanBlaney/sonido-acordes/algorithms/spectral"
	"github.com/RyanBlaney/sonido-acordes/algorithms/temporal"
	"github.com/RyanBlaney/sonido-acordes/algorithms/tonal"
	"github.com/RyanBlaney/sonido-acordes/logging"
	"github.com/RyanBlaney/sonido-acordes/transcode"
)

// ErrInvalidAudio reports PCM that cannot be interpreted
var ErrInvalidAudio = errors.New("invalid audio input")

// Audio is interleaved PCM at any rate and channel count
type Audio struct {
	PCM        []float64
	SampleRate int
	Channels   int
}

// Validate checks the input shape
func (a Audio) Validate() error {
	if a.PCM == nil {
		return fmt.Errorf("%w: nil pcm", ErrInvalidAudio)
	}
	if a.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive, got %d", ErrInvalidAudio, a.SampleRate)
	}
	if a.Channels < 1 {
		return fmt.Errorf("%w: channels must be at least 1, got %d", ErrInvalidAudio, a.Channels)
	}
	if len(a.PCM)%a.Channels != 0 {
		return fmt.Errorf("%w: %d samples do not divide into %d channels", ErrInvalidAudio, len(a.PCM), a.Channels)
	}
	return nil
}

// Stage names a pipeline step reported through progress events
type Stage string

const (
	StageFeatures Stage = "features"
	StageKey      Stage = "key"
	StageDecode   Stage = "decode"
	StageRefine   Stage = "refine"
	StageDecorate Stage = "decorate"
)

// Progress is delivered after each stage completes
type Progress struct {
	Stage    Stage   `json:"stage"`
	Progress float64 `json:"progress"` // 0..1 over the whole run
}

// ProgressFunc receives progress events. It must not block for long.
type ProgressFunc func(Progress)

// Options are per-run settings
type Options struct {
	// KeyHint pins the key. Estimation and refinement are skipped.
	KeyHint *tonal.Key

	// Beam overrides the configured initial beam mode when set
	Beam BeamMode

	Progress ProgressFunc
}

// Result is the outcome of one detection run
type Result struct {
	RunID      string           `json:"run_id"`
	Key        tonal.Key        `json:"key"`
	InitialKey tonal.Key        `json:"initial_key"`
	Timeline   tonal.Timeline   `json:"timeline"`
	Tempo      temporal.Tempo   `json:"tempo"`
	Frames     int              `json:"frames"`
	HopSeconds float64          `json:"hop_seconds"`
	Duration   float64          `json:"duration"`
	KeyChanges int              `json:"key_changes"`
	Features   *chroma.Features `json:"-"`
}

// Detector runs the chord, key and tempo pipeline. It holds no per-run state
// and may be shared between goroutines.
type Detector struct {
	config     *Config
	analyzer   *spectral.Analyzer
	extractor  *chroma.Extractor
	keys       *tonal.KeyEstimator
	tempo      *temporal.TempoEstimation
	tonic      *tonal.TonicValidator
	decorators []Decorator
	logger     logging.Logger
}

// NewDetector validates config and builds the pipeline
func NewDetector(config *Config) (*Detector, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	analyzer, err := spectral.NewAnalyzer(config.Frames)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	extractor, err := chroma.NewExtractor(config.Chroma, config.Frames.SampleRate, analyzer.FFTSize())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	d := &Detector{
		config:    config,
		analyzer:  analyzer,
		extractor: extractor,
		keys:      tonal.NewKeyEstimator(config.Key),
		tempo:     temporal.NewTempoEstimation(config.Tempo),
		tonic:     tonal.NewTonicValidator(config.Tonic),
		logger: logging.WithFields(logging.Fields{
			"component": "detector",
		}),
	}

	if config.EnableDecorators {
		d.decorators = append(d.decorators, NewSlashBassDecorator(config.SlashBassShare))
	}

	return d, nil
}

// Config returns the detector configuration
func (d *Detector) Config() *Config {
	return d.config
}

// AddDecorator appends a decoration pass run after refinement
func (d *Detector) AddDecorator(dec Decorator) {
	d.decorators = append(d.decorators, dec)
}

// Detect runs the full pipeline. Cancellation is checked between stages.
func (d *Detector) Detect(ctx context.Context, audio Audio, opts *Options) (*Result, error) {
	if err := audio.Validate(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = &Options{}
	}
	beamWidth := d.config.InitialBeamWidth()
	switch opts.Beam {
	case "":
	case BeamNarrow:
		beamWidth = d.config.Scoring.NarrowBeam
	case BeamFull:
		beamWidth = d.config.Scoring.FullBeam
	default:
		return nil, fmt.Errorf("%w: unknown beam mode %q", ErrInvalidConfig, opts.Beam)
	}

	runID := uuid.New().String()
	ctx = logging.ContextWithFields(ctx, logging.Fields{"run_id": runID})
	logger := d.logger.WithContext(ctx)
	start := time.Now()

	report := func(stage Stage, progress float64) {
		if opts.Progress != nil {
			opts.Progress(Progress{Stage: stage, Progress: progress})
		}
	}

	mono, err := transcode.Downmix(audio.PCM, audio.Channels)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAudio, err)
	}
	mono, err = transcode.ResampleWith(mono, audio.SampleRate, d.config.Frames.SampleRate, d.config.Resample)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidAudio, err)
	}

	frames := d.analyzer.Analyze(mono)
	features := d.extractor.Extract(frames, d.config.Frames.HopSeconds())
	tempo := d.tempo.EstimateTempoAutocorrelation(mono, d.config.Frames.SampleRate)
	report(StageFeatures, 0.25)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := d.keys.Estimate(features)
	pinned := opts.KeyHint != nil
	if pinned {
		key = *opts.KeyHint
	}
	report(StageKey, 0.4)

	minFrames := d.minSegmentFrames(tempo)
	decoder := tonal.NewDecoder(d.config.Scoring, minFrames)
	timeline := decoder.Decode(features, key, beamWidth)
	report(StageDecode, 0.6)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &Result{
		RunID:      runID,
		Key:        key,
		InitialKey: key,
		Timeline:   timeline,
		Tempo:      tempo,
		Frames:     features.NumFrames(),
		HopSeconds: features.HopSeconds,
		Duration:   features.Duration(),
		Features:   features,
	}

	if !pinned {
		loop := tonal.NewRefinementLoop(decoder, d.tonic, d.config.Refine)
		state := tonal.NewRefinementState(key, d.config.Refine.MaxChanges)
		state.Beam = beamWidth
		refined, err := loop.Run(ctx, features, key, timeline, state)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Error(err, "Refinement failed, keeping last good timeline")
		}
		result.Key = refined.Key
		result.Timeline = refined.Timeline
		result.KeyChanges = refined.State.Changes
	}
	report(StageRefine, 0.85)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.Timeline = d.decorate(result.Timeline, features, logger)
	report(StageDecorate, 1.0)

	logger.Info("Detection complete", logging.Fields{
		"key":         result.Key.Name(),
		"confidence":  result.Key.Confidence,
		"segments":    len(result.Timeline),
		"frames":      result.Frames,
		"bpm":         tempo.BPM,
		"key_changes": result.KeyChanges,
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})

	return result, nil
}

// minSegmentFrames converts half a beat, bounded to the configured range, to
// frames. Without a tempo the default duration is used.
func (d *Detector) minSegmentFrames(tempo temporal.Tempo) int {
	seconds := d.config.MinSegmentDefault
	if tempo.Known() {
		seconds = common.Clamp(tempo.BeatSeconds()/2, d.config.MinSegmentFloor, d.config.MinSegmentCeiling)
	}
	frames := int(math.Round(seconds / d.config.Frames.HopSeconds()))
	return max(frames, 1)
}

func (d *Detector) decorate(timeline tonal.Timeline, features *chroma.Features, logger logging.Logger) tonal.Timeline {
	for _, dec := range d.decorators {
		decorated, err := dec.Decorate(timeline, features)
		if err != nil {
			logger.Warn("Decorator failed, keeping previous timeline", logging.Fields{
				"decorator": dec.Name(),
				"error":     err.Error(),
			})
			continue
		}
		timeline = decorated
	}
	return timeline
}
