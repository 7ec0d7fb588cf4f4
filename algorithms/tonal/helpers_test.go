package tonal

import (
	"github.com/RyanBlaney/sonido-acordes/algorithms/chroma"
	"github.com/RyanBlaney/sonido-acordes/algorithms/common"
)

const testHop = 0.1

// triadChroma returns the normalized chroma of a triad with the root doubled
// when doubleRoot is set, as a bass note would do
func triadChroma(label ChordLabel, doubleRoot bool) chroma.Vector {
	var v chroma.Vector
	for _, pc := range label.Triad() {
		v[pc] += 1
	}
	if doubleRoot {
		v[label.Root] += 1
	}
	common.L1NormalizeInPlace(v[:])
	return v
}

// progression builds features holding each label for framesEach frames
func progression(labels []ChordLabel, framesEach int, withBass bool) *chroma.Features {
	f := &chroma.Features{HopSeconds: testHop}
	for _, l := range labels {
		for range framesEach {
			f.Chroma = append(f.Chroma, triadChroma(l, withBass))
			f.Energy = append(f.Energy, 1.0)
			bass := chroma.NoBass
			if withBass {
				bass = l.Root
			}
			f.Bass = append(f.Bass, bass)
			f.RawBass = append(f.RawBass, bass)
		}
	}
	return f
}

func major(root int) ChordLabel { return NewLabel(root, ChordMajor) }
func minor(root int) ChordLabel { return NewLabel(root, ChordMinor) }

func silence(frames int) *chroma.Features {
	f := &chroma.Features{HopSeconds: testHop}
	for range frames {
		f.Chroma = append(f.Chroma, chroma.Vector{})
		f.Energy = append(f.Energy, 0)
		f.Bass = append(f.Bass, chroma.NoBass)
		f.RawBass = append(f.RawBass, chroma.NoBass)
	}
	return f
}
