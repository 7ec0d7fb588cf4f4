package tonal

import (
	"encoding/json"
	"strings"

	"github.com/RyanBlaney/sonido-acordes/algorithms/common"
)

// ChordQuality represents the quality/type of a chord
type ChordQuality int

const (
	ChordMajor ChordQuality = iota
	ChordMinor
)

// Intervals returns the triad intervals above the root
func (q ChordQuality) Intervals() [3]int {
	if q == ChordMinor {
		return [3]int{0, 3, 7}
	}
	return [3]int{0, 4, 7}
}

// Suffix is the symbol appended to the root name ("" or "m")
func (q ChordQuality) Suffix() string {
	if q == ChordMinor {
		return "m"
	}
	return ""
}

// String returns the quality name
func (q ChordQuality) String() string {
	if q == ChordMinor {
		return "minor"
	}
	return "major"
}

// NoBassNote marks a label without an explicit bass
const NoBassNote = -1

// ChordLabel is a structured chord symbol. Rendering to text happens only
// at the output boundary.
type ChordLabel struct {
	Root       int          `json:"root"`
	Quality    ChordQuality `json:"quality"`
	Extensions []string     `json:"extensions,omitempty"`
	Bass       int          `json:"bass"` // NoBassNote unless a slash bass is set
}

// NewLabel creates a root-position label without extensions
func NewLabel(root int, quality ChordQuality) ChordLabel {
	return ChordLabel{Root: common.PitchClass(root), Quality: quality, Bass: NoBassNote}
}

// Triad returns the three pitch classes of the chord
func (l ChordLabel) Triad() [3]int {
	var out [3]int
	for i, iv := range l.Quality.Intervals() {
		out[i] = common.PitchClass(l.Root + iv)
	}
	return out
}

// Third returns the pitch class of the chord third
func (l ChordLabel) Third() int {
	return l.Triad()[1]
}

// Fifth returns the pitch class of the chord fifth
func (l ChordLabel) Fifth() int {
	return l.Triad()[2]
}

// Equal compares every field, extensions included
func (l ChordLabel) Equal(other ChordLabel) bool {
	if l.Root != other.Root || l.Quality != other.Quality || l.Bass != other.Bass {
		return false
	}
	if len(l.Extensions) != len(other.Extensions) {
		return false
	}
	for i := range l.Extensions {
		if l.Extensions[i] != other.Extensions[i] {
			return false
		}
	}
	return true
}

// String renders "C", "Am", "G7" or "C/E"
func (l ChordLabel) String() string {
	var b strings.Builder
	b.WriteString(NoteName(l.Root))
	b.WriteString(l.Quality.Suffix())
	for _, ext := range l.Extensions {
		b.WriteString(ext)
	}
	if l.Bass != NoBassNote && l.Bass != l.Root {
		b.WriteString("/")
		b.WriteString(NoteName(l.Bass))
	}
	return b.String()
}

// ChordSegment is a labelled region of the timeline starting at Time seconds
type ChordSegment struct {
	Time       float64    `json:"t"`
	Label      ChordLabel `json:"-"`
	FrameIndex int        `json:"frame_index"`
}

// MarshalJSON renders the label as display text
func (s ChordSegment) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Time       float64 `json:"t"`
		Label      string  `json:"label"`
		FrameIndex int     `json:"frame_index"`
	}{s.Time, s.Label.String(), s.FrameIndex})
}

// Timeline is an ordered list of segments; adjacent segments never share a
// label and start times strictly increase
type Timeline []ChordSegment

// Labels returns the display text of every segment
func (t Timeline) Labels() []string {
	out := make([]string, len(t))
	for i, s := range t {
		out[i] = s.Label.String()
	}
	return out
}

// SegmentDurations returns the length of each segment given the end of the
// frame grid in seconds
func (t Timeline) SegmentDurations(end float64) []float64 {
	out := make([]float64, len(t))
	for i, s := range t {
		next := end
		if i+1 < len(t) {
			next = t[i+1].Time
		}
		if d := next - s.Time; d > 0 {
			out[i] = d
		}
	}
	return out
}

// SegmentFrames returns the number of frames each segment covers given the
// total frame count
func (t Timeline) SegmentFrames(numFrames int) []int {
	out := make([]int, len(t))
	for i, s := range t {
		next := numFrames
		if i+1 < len(t) {
			next = t[i+1].FrameIndex
		}
		out[i] = next - s.FrameIndex
	}
	return out
}

// WellFormed checks that adjacent labels differ and times strictly increase
func (t Timeline) WellFormed() bool {
	for i := 1; i < len(t); i++ {
		if t[i].Time <= t[i-1].Time || t[i].Label.Equal(t[i-1].Label) {
			return false
		}
	}
	return true
}
