package detector

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/RyanBlaney/sonido-acordes/algorithms/chroma"
	"github.com/RyanBlaney/sonido-acordes/algorithms/common"
	"github.com/RyanBlaney/sonido-acordes/algorithms/spectral"
	"github.com/RyanBlaney/sonido-acordes/algorithms/temporal"
	"github.com/RyanBlaney/sonido-acordes/algorithms/tonal"
	"github.com/RyanBlaney/sonido-acordes/transcode"
)

// ErrInvalidConfig reports a configuration contract violation
var ErrInvalidConfig = errors.New("invalid detector configuration")

// BeamMode selects the beam width of the initial decode
type BeamMode string

const (
	BeamNarrow BeamMode = "narrow"
	BeamFull   BeamMode = "full"
)

// Config holds every tunable of the detection pipeline
type Config struct {
	Frames  spectral.FrameConfig `json:"frames"`
	Chroma  chroma.Config        `json:"chroma"`
	Key     tonal.KeyConfig      `json:"key"`
	Scoring tonal.ScoringConfig  `json:"scoring"`
	Tonic   tonal.TonicConfig    `json:"tonic"`
	Refine  tonal.RefineConfig   `json:"refine"`
	Tempo   temporal.TempoConfig `json:"tempo"`

	Beam     BeamMode                 `json:"beam"`
	Resample transcode.ResampleMethod `json:"resample"` // interpolation used to reach Frames.SampleRate

	// Segments shorter than half a beat are absorbed, bounded to
	// [MinSegmentFloor, MinSegmentCeiling]. Without a tempo
	// MinSegmentDefault applies.
	MinSegmentFloor   float64 `json:"min_segment_floor"`
	MinSegmentCeiling float64 `json:"min_segment_ceiling"`
	MinSegmentDefault float64 `json:"min_segment_default"`

	// SlashBassShare is the share of a segment's frames that must agree on
	// a third or fifth bass before a slash label is emitted
	SlashBassShare   float64 `json:"slash_bass_share"`
	EnableDecorators bool    `json:"enable_decorators"`
}

// DefaultConfig returns the default pipeline configuration
func DefaultConfig() *Config {
	refine := tonal.DefaultRefineConfig()
	scoring := tonal.DefaultScoringConfig()
	refine.FullBeam = scoring.FullBeam

	return &Config{
		Frames:            spectral.DefaultFrameConfig(),
		Chroma:            chroma.DefaultConfig(),
		Key:               tonal.DefaultKeyConfig(),
		Scoring:           scoring,
		Tonic:             tonal.DefaultTonicConfig(),
		Refine:            refine,
		Tempo:             temporal.DefaultTempoConfig(),
		Beam:              BeamNarrow,
		Resample:          transcode.ResampleLinear,
		MinSegmentFloor:   0.2,
		MinSegmentCeiling: 1.0,
		MinSegmentDefault: 0.3,
		SlashBassShare:    0.6,
		EnableDecorators:  true,
	}
}

// Validate checks the configuration contract. Every failure wraps
// ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := c.Frames.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if !common.IsPowerOfTwo(c.Frames.WindowSize) {
		return fmt.Errorf("%w: window size must be a power of two, got %d", ErrInvalidConfig, c.Frames.WindowSize)
	}
	if err := c.Chroma.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := c.Scoring.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Refine.MaxChanges < 0 {
		return fmt.Errorf("%w: max key changes must not be negative, got %d", ErrInvalidConfig, c.Refine.MaxChanges)
	}
	if c.Refine.FullBeam < 1 {
		return fmt.Errorf("%w: refinement beam width must be at least 1", ErrInvalidConfig)
	}
	if c.Beam != BeamNarrow && c.Beam != BeamFull {
		return fmt.Errorf("%w: unknown beam mode %q", ErrInvalidConfig, c.Beam)
	}
	if _, err := c.Resample.Interpolation(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.MinSegmentFloor < 0 || c.MinSegmentCeiling < c.MinSegmentFloor {
		return fmt.Errorf("%w: minimum segment bounds [%.2f, %.2f]", ErrInvalidConfig, c.MinSegmentFloor, c.MinSegmentCeiling)
	}
	if c.Tempo.MinBPM <= 0 || c.Tempo.MaxBPM <= c.Tempo.MinBPM {
		return fmt.Errorf("%w: tempo range [%.1f, %.1f] BPM", ErrInvalidConfig, c.Tempo.MinBPM, c.Tempo.MaxBPM)
	}
	return nil
}

// InitialBeamWidth returns the beam width of the first decode
func (c *Config) InitialBeamWidth() int {
	if c.Beam == BeamFull {
		return c.Scoring.FullBeam
	}
	return c.Scoring.NarrowBeam
}

// LoadConfigFromEnv returns DefaultConfig with ACORDES_* overrides applied.
// Variables are read from the process environment after loading the given
// .env files (or ./.env when none are given); missing files are ignored.
func LoadConfigFromEnv(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}

	cfg := DefaultConfig()
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	ints := map[string]*int{
		"ACORDES_SAMPLE_RATE":     &c.Frames.SampleRate,
		"ACORDES_WINDOW_SIZE":     &c.Frames.WindowSize,
		"ACORDES_HOP_SIZE":        &c.Frames.HopSize,
		"ACORDES_MAX_KEY_CHANGES": &c.Refine.MaxChanges,
		"ACORDES_NARROW_BEAM":     &c.Scoring.NarrowBeam,
		"ACORDES_FULL_BEAM":       &c.Scoring.FullBeam,
	}
	floats := map[string]*float64{
		"ACORDES_COSINE_FLOOR":     &c.Scoring.CosineFloor,
		"ACORDES_RERUN_TRIGGER":    &c.Refine.RerunTrigger,
		"ACORDES_BASS_MULTIPLIER":  &c.Scoring.BassMultiplier,
		"ACORDES_SLASH_BASS_SHARE": &c.SlashBassShare,
		"ACORDES_BASS_BAND_RATIO":  &c.Chroma.BassBandRatio,
	}

	for name, dst := range ints {
		raw, ok := lookup(name)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, name, raw)
		}
		*dst = v
	}

	for name, dst := range floats {
		raw, ok := lookup(name)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, name, raw)
		}
		*dst = v
	}

	if raw, ok := lookup("ACORDES_BEAM"); ok && raw != "" {
		c.Beam = BeamMode(strings.ToLower(strings.TrimSpace(raw)))
	}
	if raw, ok := lookup("ACORDES_RESAMPLE"); ok && raw != "" {
		c.Resample = transcode.ResampleMethod(strings.ToLower(strings.TrimSpace(raw)))
	}
	if raw, ok := lookup("ACORDES_FFT_BACKEND"); ok && raw != "" {
		c.Frames.Backend = spectral.Backend(strings.ToLower(strings.TrimSpace(raw)))
	}
	if raw, ok := lookup("ACORDES_DECORATORS"); ok && raw != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%w: ACORDES_DECORATORS=%q is not a boolean", ErrInvalidConfig, raw)
		}
		c.EnableDecorators = enabled
	}

	c.Refine.FullBeam = c.Scoring.FullBeam
	return nil
}
