package transcode

import (
	"fmt"

	"github.com/RyanBlaney/sonido-acordes/algorithms/common"
)

// Downmix averages interleaved channels into mono. The PCM length must be a
// multiple of channels.
func Downmix(pcm []float64, channels int) ([]float64, error) {
	if channels < 1 {
		return nil, fmt.Errorf("channel count must be at least 1, got %d", channels)
	}
	if len(pcm)%channels != 0 {
		return nil, fmt.Errorf("pcm length %d is not a multiple of %d channels", len(pcm), channels)
	}

	if channels == 1 {
		mono := make([]float64, len(pcm))
		copy(mono, pcm)
		return mono, nil
	}

	frames := len(pcm) / channels
	mono := make([]float64, frames)
	scale := 1.0 / float64(channels)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += pcm[i*channels+c]
		}
		mono[i] = sum * scale
	}
	return mono, nil
}

// ResampleMethod selects the interpolation used when changing sample rate
type ResampleMethod string

const (
	ResampleLinear ResampleMethod = "linear"
	ResampleCubic  ResampleMethod = "cubic"
)

// Interpolation maps the method to its interpolator. An empty method is linear.
func (m ResampleMethod) Interpolation() (common.InterpolationType, error) {
	switch m {
	case ResampleLinear, "":
		return common.Linear, nil
	case ResampleCubic:
		return common.Cubic, nil
	default:
		return common.Linear, fmt.Errorf("unknown resample method %q", string(m))
	}
}

// Resample converts mono audio between sample rates by linear interpolation.
// The output covers the same duration: round(len*to/from) samples.
func Resample(x []float64, from, to int) ([]float64, error) {
	return ResampleWith(x, from, to, ResampleLinear)
}

// ResampleWith is Resample with a chosen interpolation method
func ResampleWith(x []float64, from, to int, method ResampleMethod) ([]float64, error) {
	if from <= 0 || to <= 0 {
		return nil, fmt.Errorf("sample rates must be positive, got %d -> %d", from, to)
	}
	interp, err := method.Interpolation()
	if err != nil {
		return nil, err
	}
	return common.NewInterpolator(interp).ResampleSignal(x, from, to), nil
}
