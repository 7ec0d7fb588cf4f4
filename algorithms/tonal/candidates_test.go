package tonal

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

type chordState struct {
	root    int
	quality ChordQuality
}

func stateSet(candidates []ChordCandidate) (map[chordState]bool, map[chordState]bool) {
	diatonic := map[chordState]bool{}
	borrowed := map[chordState]bool{}
	for _, c := range candidates {
		s := chordState{c.Root, c.Quality}
		if c.Borrowed {
			borrowed[s] = true
		} else {
			diatonic[s] = true
		}
	}
	return diatonic, borrowed
}

func TestCandidateSetsForAllKeys(t *testing.T) {
	for root := range 12 {
		for _, mode := range []KeyMode{KeyModeMajor, KeyModeMinor} {
			k := Key{Root: root, Mode: mode}
			candidates := BuildCandidates(k)
			at := func(iv int) int { return (root + iv) % 12 }

			var wantDiatonic, wantBorrowed []chordState
			if mode == KeyModeMajor {
				wantDiatonic = []chordState{
					{at(0), ChordMajor}, {at(2), ChordMinor}, {at(4), ChordMinor}, {at(5), ChordMajor},
					{at(7), ChordMajor}, {at(9), ChordMinor}, {at(11), ChordMinor},
				}
				wantBorrowed = []chordState{
					{at(10), ChordMajor}, {at(8), ChordMajor}, {at(3), ChordMajor}, {at(5), ChordMinor},
				}
			} else {
				wantDiatonic = []chordState{
					{at(0), ChordMinor}, {at(2), ChordMinor}, {at(3), ChordMajor}, {at(5), ChordMinor},
					{at(7), ChordMinor}, {at(8), ChordMajor}, {at(10), ChordMajor},
				}
				wantBorrowed = []chordState{
					{at(7), ChordMajor}, {at(5), ChordMajor}, {at(11), ChordMajor}, {at(0), ChordMajor},
				}
			}

			diatonic, borrowed := stateSet(candidates)
			assert.Len(t, candidates, 11, k.Name())
			assert.Len(t, diatonic, 7, k.Name())
			assert.Len(t, borrowed, 4, k.Name())
			for _, s := range wantDiatonic {
				assert.True(t, diatonic[s], "%s diatonic %v", k.Name(), s)
			}
			for _, s := range wantBorrowed {
				assert.True(t, borrowed[s], "%s borrowed %v", k.Name(), s)
			}
		}
	}
}

func TestCandidatesHaveNoDuplicates(t *testing.T) {
	for root := range 12 {
		for _, mode := range []KeyMode{KeyModeMajor, KeyModeMinor} {
			seen := map[chordState]bool{}
			for _, c := range BuildCandidates(Key{Root: root, Mode: mode}) {
				s := chordState{c.Root, c.Quality}
				assert.False(t, seen[s])
				seen[s] = true
			}
		}
	}
}

func TestCandidateTemplate(t *testing.T) {
	mask := ChordCandidate{Root: 9, Quality: ChordMinor}.Template()
	var on []int
	for pc, v := range mask {
		if v == 1 {
			on = append(on, pc)
		}
	}
	sort.Ints(on)
	assert.Equal(t, []int{0, 4, 9}, on)
}

func TestMinorKeyKeepsLeadingToneAndSubtonic(t *testing.T) {
	candidates := BuildCandidates(Key{Root: 0, Mode: KeyModeMinor})
	diatonic, borrowed := stateSet(candidates)

	assert.True(t, borrowed[chordState{11, ChordMajor}])
	assert.True(t, diatonic[chordState{10, ChordMajor}])
	assert.False(t, borrowed[chordState{10, ChordMajor}])
}
