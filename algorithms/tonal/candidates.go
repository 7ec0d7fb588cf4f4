package tonal

import (
	"github.com/RyanBlaney/sonido-acordes/algorithms/common"
)

// ChordCandidate is one decodable chord state
type ChordCandidate struct {
	Root     int          `json:"root"`
	Quality  ChordQuality `json:"quality"`
	Borrowed bool         `json:"borrowed"`
}

// Label converts the candidate into a root-position label
func (c ChordCandidate) Label() ChordLabel {
	return NewLabel(c.Root, c.Quality)
}

// Template returns the binary chroma mask of the triad
func (c ChordCandidate) Template() [12]float64 {
	var mask [12]float64
	for _, pc := range c.Label().Triad() {
		mask[pc] = 1.0
	}
	return mask
}

type degree struct {
	interval int
	quality  ChordQuality
}

// Only major and minor triads exist as states, so the diminished degree
// (vii in major, ii in minor) is carried as a minor triad on that root.
var (
	majorDiatonic = []degree{
		{0, ChordMajor}, {2, ChordMinor}, {4, ChordMinor}, {5, ChordMajor},
		{7, ChordMajor}, {9, ChordMinor}, {11, ChordMinor},
	}
	majorBorrowed = []degree{
		{10, ChordMajor}, // bVII
		{8, ChordMajor},  // bVI
		{3, ChordMajor},  // bIII
		{5, ChordMinor},  // iv
	}

	minorDiatonic = []degree{
		{0, ChordMinor}, {2, ChordMinor}, {3, ChordMajor}, {5, ChordMinor},
		{7, ChordMinor}, {8, ChordMajor}, {10, ChordMajor},
	}
	minorBorrowed = []degree{
		{7, ChordMajor},  // V
		{5, ChordMajor},  // IV
		{11, ChordMajor}, // VII, the leading-tone major kept apart from bVII
		{10, ChordMajor}, // bVII, already diatonic in natural minor
		{8, ChordMajor},  // bVI, already diatonic in natural minor
		{0, ChordMajor},  // I
	}
)

// BuildCandidates returns the diatonic chords of the key followed by the
// borrowed chords that are not already present. The set is rebuilt, never
// patched, whenever the key changes.
func BuildCandidates(k Key) []ChordCandidate {
	diatonic, borrowed := majorDiatonic, majorBorrowed
	if k.Mode == KeyModeMinor {
		diatonic, borrowed = minorDiatonic, minorBorrowed
	}

	type state struct {
		root    int
		quality ChordQuality
	}
	seen := make(map[state]bool, len(diatonic)+len(borrowed))
	candidates := make([]ChordCandidate, 0, len(diatonic)+len(borrowed))

	add := func(d degree, isBorrowed bool) {
		s := state{common.PitchClass(k.Root + d.interval), d.quality}
		if seen[s] {
			return
		}
		seen[s] = true
		candidates = append(candidates, ChordCandidate{Root: s.root, Quality: s.quality, Borrowed: isBorrowed})
	}

	for _, d := range diatonic {
		add(d, false)
	}
	for _, d := range borrowed {
		add(d, true)
	}

	return candidates
}
