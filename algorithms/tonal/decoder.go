package tonal

import (
	"math"
	"sort"

	"github.com/RyanBlaney/sonido-acordes/algorithms/chroma"
	"github.com/RyanBlaney/sonido-acordes/algorithms/common"
	"github.com/RyanBlaney/sonido-acordes/logging"
)

// ChordDecoder turns features into a timeline for a given key and beam width
type ChordDecoder interface {
	Decode(features *chroma.Features, key Key, beamWidth int) Timeline
}

// Decoder is a beam-pruned Viterbi decoder over the candidate set of a key
type Decoder struct {
	config           ScoringConfig
	minSegmentFrames int
	logger           logging.Logger
}

// NewDecoder creates a decoder. Runs shorter than minSegmentFrames are
// absorbed into their neighbours; values below 2 disable absorption.
func NewDecoder(config ScoringConfig, minSegmentFrames int) *Decoder {
	return &Decoder{
		config:           config,
		minSegmentFrames: minSegmentFrames,
		logger: logging.WithFields(logging.Fields{
			"component": "chord_decoder",
		}),
	}
}

// Decode builds the candidate set for key, runs Viterbi with the previous
// column pruned to beamWidth states, and collapses the best path into
// segments. Zero frames yield an empty timeline.
func (d *Decoder) Decode(features *chroma.Features, key Key, beamWidth int) Timeline {
	candidates := BuildCandidates(key)
	numFrames := features.NumFrames()
	if numFrames == 0 || len(candidates) == 0 {
		return Timeline{}
	}
	if beamWidth < 1 {
		beamWidth = 1
	}

	emissions, fallbackColumns := d.emissions(features, candidates)
	transitions := d.transitions(candidates, key)

	path, score := viterbi(emissions, transitions, beamWidth)
	timeline := d.segments(path, candidates, features.HopSeconds)

	d.logger.Debug("Chord path decoded", logging.Fields{
		"key":              key.Name(),
		"frames":           numFrames,
		"candidates":       len(candidates),
		"beam_width":       beamWidth,
		"fallback_columns": fallbackColumns,
		"path_score":       score,
		"segments":         len(timeline),
	})

	return timeline
}

// emissions scores every candidate on every frame. Columns where all
// candidates are impossible are rescored without the cosine floor.
func (d *Decoder) emissions(features *chroma.Features, candidates []ChordCandidate) ([][]float64, int) {
	lowEnergy := common.Percentile(features.Energy, d.config.LowEnergyPercentile)
	fallbackColumns := 0

	out := make([][]float64, features.NumFrames())
	for t, v := range features.Chroma {
		bass := chroma.NoBass
		if t < len(features.Bass) {
			bass = features.Bass[t]
		}
		quiet := t < len(features.Energy) && features.Energy[t] < lowEnergy

		column := make([]float64, len(candidates))
		finite := false
		for c, cand := range candidates {
			column[c] = d.config.Emission(v, cand, bass, quiet)
			if !math.IsInf(column[c], -1) {
				finite = true
			}
		}

		if !finite {
			fallbackColumns++
			for c, cand := range candidates {
				column[c] = d.config.fallbackEmission(v, cand, bass, quiet)
			}
		}
		out[t] = column
	}

	return out, fallbackColumns
}

func (d *Decoder) transitions(candidates []ChordCandidate, key Key) [][]float64 {
	out := make([][]float64, len(candidates))
	for a := range candidates {
		out[a] = make([]float64, len(candidates))
		for b := range candidates {
			out[a][b] = d.config.Transition(candidates[a], candidates[b], key)
		}
	}
	return out
}

// beam returns the indices of the top k finite scores, highest first,
// ties broken by lower index
func beam(scores []float64, k int) []int {
	idx := make([]int, 0, len(scores))
	for i, s := range scores {
		if !math.IsInf(s, -1) {
			idx = append(idx, i)
		}
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	if len(idx) > k {
		idx = idx[:k]
	}
	return idx
}

// viterbi returns the best state path and its score. emissions is indexed
// [frame][state] and transitions [from][to] as costs.
func viterbi(emissions [][]float64, transitions [][]float64, beamWidth int) ([]int, float64) {
	numFrames := len(emissions)
	if numFrames == 0 {
		return nil, math.Inf(-1)
	}
	numStates := len(emissions[0])

	delta := make([]float64, numStates)
	copy(delta, emissions[0])
	next := make([]float64, numStates)

	backpointers := make([][]int, numFrames)

	for t := 1; t < numFrames; t++ {
		survivors := beam(delta, beamWidth)
		backpointers[t] = make([]int, numStates)

		for s := range numStates {
			best := math.Inf(-1)
			bestPrev := -1
			for _, p := range survivors {
				if v := delta[p] - transitions[p][s]; v > best {
					best = v
					bestPrev = p
				}
			}
			if bestPrev < 0 {
				// no finite predecessor; keep the path continuous
				bestPrev = s
				if len(survivors) > 0 {
					bestPrev = survivors[0]
				}
			}
			next[s] = best + emissions[t][s]
			backpointers[t][s] = bestPrev
		}
		delta, next = next, delta
	}

	last := common.ArgMax(delta)
	path := make([]int, numFrames)
	path[numFrames-1] = last
	for t := numFrames - 1; t > 0; t-- {
		path[t-1] = backpointers[t][path[t]]
	}

	return path, delta[last]
}

type run struct {
	start  int
	length int
	state  int
}

// segments collapses a state path into a timeline, absorbing runs shorter
// than the minimum into the preceding run (or the following one at the start)
func (d *Decoder) segments(path []int, candidates []ChordCandidate, hopSeconds float64) Timeline {
	var runs []run
	for t, s := range path {
		if n := len(runs); n > 0 && runs[n-1].state == s {
			runs[n-1].length++
			continue
		}
		runs = append(runs, run{start: t, length: 1, state: s})
	}

	if d.minSegmentFrames > 1 && len(runs) > 1 {
		merged := make([]run, 0, len(runs))
		for _, r := range runs {
			if n := len(merged); n > 0 && (r.length < d.minSegmentFrames || merged[n-1].state == r.state) {
				merged[n-1].length += r.length
				continue
			}
			merged = append(merged, r)
		}
		if len(merged) > 1 && merged[0].length < d.minSegmentFrames {
			merged[1].length += merged[0].length
			merged[1].start = 0
			merged = merged[1:]
		}
		runs = merged
	}

	timeline := make(Timeline, 0, len(runs))
	for _, r := range runs {
		timeline = append(timeline, ChordSegment{
			Time:       float64(r.start) * hopSeconds,
			Label:      candidates[r.state].Label(),
			FrameIndex: r.start,
		})
	}
	return timeline
}
