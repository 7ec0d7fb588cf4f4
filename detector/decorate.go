package detector

import (
	"errors"
	"fmt"

	"github.com/RyanBlaney/sonido-acordes/algorithms/chroma"
	"github.com/RyanBlaney/sonido-acordes/algorithms/tonal"
)

// ErrTimelineMismatch is returned when a timeline does not fit the features it
// was decoded from
var ErrTimelineMismatch = errors.New("timeline does not match features")

// Decorator is an optional pass over a finished timeline. It returns a new
// timeline and never mutates its input. On error the detector keeps the
// timeline it had before the pass.
type Decorator interface {
	Name() string
	Decorate(timeline tonal.Timeline, features *chroma.Features) (tonal.Timeline, error)
}

// SlashBassDecorator sets a slash bass on segments whose stabilized bass sits
// on the chord's third or fifth for most of the segment
type SlashBassDecorator struct {
	Share     float64 // fraction of the segment's bass frames that must agree
	MinFrames int     // bass frames required before a segment is considered
}

// NewSlashBassDecorator creates a slash bass decorator with the given share
func NewSlashBassDecorator(share float64) *SlashBassDecorator {
	return &SlashBassDecorator{Share: share, MinFrames: 2}
}

func (d *SlashBassDecorator) Name() string {
	return "slash_bass"
}

func (d *SlashBassDecorator) Decorate(timeline tonal.Timeline, features *chroma.Features) (tonal.Timeline, error) {
	numFrames := features.NumFrames()
	if len(timeline) == 0 {
		return timeline, nil
	}
	if features == nil || len(features.Bass) != numFrames {
		return nil, fmt.Errorf("%w: bass values missing for %d frames", ErrTimelineMismatch, numFrames)
	}

	out := make(tonal.Timeline, len(timeline))
	copy(out, timeline)

	for i, seg := range out {
		end := numFrames
		if i+1 < len(out) {
			end = out[i+1].FrameIndex
		}
		if seg.FrameIndex < 0 || end > numFrames || end <= seg.FrameIndex {
			return nil, fmt.Errorf("%w: segment %d covers frames [%d, %d) of %d",
				ErrTimelineMismatch, i, seg.FrameIndex, end, numFrames)
		}

		third, fifth := seg.Label.Third(), seg.Label.Fifth()
		var voiced, onThird, onFifth int
		for _, b := range features.Bass[seg.FrameIndex:end] {
			switch b {
			case chroma.NoBass:
				continue
			case third:
				onThird++
			case fifth:
				onFifth++
			}
			voiced++
		}
		if voiced < d.MinFrames {
			continue
		}

		label := seg.Label
		label.Extensions = append([]string(nil), seg.Label.Extensions...)
		switch {
		case float64(onThird) >= d.Share*float64(voiced):
			label.Bass = third
		case float64(onFifth) >= d.Share*float64(voiced):
			label.Bass = fifth
		default:
			continue
		}
		out[i].Label = label
	}

	return out, nil
}
