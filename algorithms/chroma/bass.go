package chroma

import (
	"math"

	"github.com/RyanBlaney/sonido-acordes/algorithms/common"
)

// NoBass marks a frame without a trustworthy bass pitch class
const NoBass = -1

// bassDetector estimates the bass fundamental from the low band of a
// magnitude spectrum via a band-limited autocorrelation synthesized from
// bin powers: r(L) = sum_k |X_k|^2 cos(2*pi*f_k*L/sr), normalized by r(0).
// Frames whose band holds only leakage from notes above it are rejected
// before the autocorrelation is read.
type bassDetector struct {
	sampleRate float64
	tuning     float64
	peakFloor  float64
	bandRatio  float64
	minFreq    float64
	maxFreq    float64

	firstBin int
	lastBin  int
	upperBin int // last bin of the octave above the band
	minLag   int
	maxLag   int

	// cosTable[l][k] = cos(2*pi*f_{firstBin+k}*(minLag+l)/sr)
	cosTable [][]float64
}

func newBassDetector(config Config, sampleRate, fftSize int) *bassDetector {
	sr := float64(sampleRate)
	resolution := sr / float64(fftSize)

	d := &bassDetector{
		sampleRate: sr,
		tuning:     config.TuningFreq,
		peakFloor:  config.BassPeakFloor,
		bandRatio:  config.BassBandRatio,
		minFreq:    config.BassMinFreq,
		maxFreq:    config.BassMaxFreq,
		firstBin:   int(math.Ceil(config.BassBandFloor / resolution)),
		lastBin:    int(math.Floor(config.BassMaxFreq / resolution)),
		upperBin:   int(math.Floor(2 * config.BassMaxFreq / resolution)),
		minLag:     int(math.Ceil(sr / config.BassMaxFreq)),
		maxLag:     int(math.Floor(sr / config.BassMinFreq)),
	}
	if d.firstBin < 1 {
		d.firstBin = 1
	}
	if d.lastBin > fftSize/2-1 {
		d.lastBin = fftSize/2 - 1
	}
	if d.upperBin > fftSize/2-1 {
		d.upperBin = fftSize/2 - 1
	}

	if d.lastBin < d.firstBin || d.maxLag < d.minLag {
		return d
	}

	numBins := d.lastBin - d.firstBin + 1
	d.cosTable = make([][]float64, d.maxLag-d.minLag+1)
	for l := range d.cosTable {
		lag := float64(d.minLag + l)
		row := make([]float64, numBins)
		for k := range row {
			freq := float64(d.firstBin+k) * resolution
			row[k] = math.Cos(2 * math.Pi * freq * lag / sr)
		}
		d.cosTable[l] = row
	}

	return d
}

func (d *bassDetector) detect(magnitude []float64) int {
	if len(d.cosTable) == 0 || len(magnitude) <= d.lastBin {
		return NoBass
	}

	power := make([]float64, d.lastBin-d.firstBin+1)
	r0 := 0.0
	for k := range power {
		m := magnitude[d.firstBin+k]
		power[k] = m * m
		r0 += power[k]
	}
	if r0 < common.Epsilon || !d.bandHoldsBass(magnitude, power, r0) {
		return NoBass
	}

	r := make([]float64, len(d.cosTable))
	for l, row := range d.cosTable {
		sum := 0.0
		for k, p := range power {
			sum += p * row[k]
		}
		r[l] = sum / r0
	}

	best := common.ArgMax(r)
	if r[best] < d.peakFloor {
		return NoBass
	}

	lag := float64(d.minLag + best)
	if best > 0 && best < len(r)-1 {
		lag += parabolicOffset(r[best-1], r[best], r[best+1])
	}

	freq := d.sampleRate / lag
	if freq < d.minFreq || freq > d.maxFreq {
		return NoBass
	}

	return FrequencyToPitchClass(freq, d.tuning)
}

// bandHoldsBass rejects a band that is weak next to the octave above it, or
// whose strongest bin is the top bin with the spectrum still rising past it
func (d *bassDetector) bandHoldsBass(magnitude, power []float64, bandPower float64) bool {
	above := 0.0
	for k := d.lastBin + 1; k <= d.upperBin && k < len(magnitude); k++ {
		above += magnitude[k] * magnitude[k]
	}
	if bandPower < d.bandRatio*above {
		return false
	}

	top := len(power) - 1
	if common.ArgMax(power) == top && d.lastBin+1 < len(magnitude) &&
		magnitude[d.lastBin+1] > magnitude[d.lastBin] {
		return false
	}
	return true
}

// parabolicOffset returns the vertex offset of the parabola through three
// equally spaced samples, in [-0.5, 0.5]
func parabolicOffset(left, centre, right float64) float64 {
	denominator := left - 2*centre + right
	if math.Abs(denominator) < common.Epsilon {
		return 0
	}
	return common.Clamp(0.5*(left-right)/denominator, -0.5, 0.5)
}

// StabilizeBass keeps a raw bass value only where it sits inside a run of
// BassRunLength equal consecutive values and the frame energy is at or above
// the relaxed BassPercentile energy gate. Everything else becomes NoBass.
func StabilizeBass(raw []int, energy []float64, config Config) []int {
	n := len(raw)
	out := make([]int, n)
	for i := range out {
		out[i] = NoBass
	}
	if n == 0 {
		return out
	}

	run := config.BassRunLength
	if run < 1 {
		run = 1
	}

	// mark every frame covered by a window of run equal, present values
	for start := 0; start+run <= n; start++ {
		v := raw[start]
		if v == NoBass {
			continue
		}
		agree := true
		for j := start + 1; j < start+run; j++ {
			if raw[j] != v {
				agree = false
				break
			}
		}
		if !agree {
			continue
		}
		for j := start; j < start+run; j++ {
			out[j] = v
		}
	}

	gate := (1 - config.EnergyGateTolerance) * common.Percentile(energy, config.BassPercentile)
	for i := range out {
		if i < len(energy) && energy[i] < gate {
			out[i] = NoBass
		}
	}

	return out
}
