package export

import (
	"fmt"
	"io"
	"math"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/RyanBlaney/sonido-acordes/algorithms/tonal"
)

const (
	// TicksPerQuarter is the file resolution
	TicksPerQuarter = 960
	// DefaultBPM is used when no tempo was detected
	DefaultBPM = 120.0

	chordOctaveBase = 60 // C4
	bassOctaveBase  = 48 // C3
	velocity        = 80
)

// MIDIOptions controls block-chord rendering
type MIDIOptions struct {
	BPM     float64 // 0 uses DefaultBPM
	Channel uint8
	Bass    bool // add the bass note an octave below the chord
}

// DefaultMIDIOptions renders with bass on channel 0
func DefaultMIDIOptions() MIDIOptions {
	return MIDIOptions{BPM: DefaultBPM, Channel: 0, Bass: true}
}

// ChordNotes returns the MIDI keys used to voice a label: the bass (slash
// bass if set, else the root) followed by the close-position triad
func ChordNotes(label tonal.ChordLabel, withBass bool) []uint8 {
	var keys []uint8
	if withBass {
		bass := label.Root
		if label.Bass != tonal.NoBassNote {
			bass = label.Bass
		}
		keys = append(keys, uint8(bassOctaveBase+bass))
	}

	for _, iv := range label.Quality.Intervals() {
		keys = append(keys, uint8(chordOctaveBase+label.Root+iv))
	}
	return keys
}

func secondsToTicks(seconds, bpm float64) uint32 {
	return uint32(math.Round(seconds * bpm / 60.0 * TicksPerQuarter))
}

// WriteMIDI renders the timeline as block chords into a single-track
// standard MIDI file. end is the time in seconds at which the last chord stops.
func WriteMIDI(w io.Writer, timeline tonal.Timeline, end float64, opts MIDIOptions) error {
	bpm := opts.BPM
	if bpm <= 0 {
		bpm = DefaultBPM
	}

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(TicksPerQuarter)

	var tr smf.Track
	tr.Add(0, smf.MetaTrackSequenceName("chords"))
	tr.Add(0, smf.MetaTempo(bpm))

	var cursor uint32
	for i, seg := range timeline {
		stop := end
		if i+1 < len(timeline) {
			stop = timeline[i+1].Time
		}
		startTick := secondsToTicks(seg.Time, bpm)
		stopTick := secondsToTicks(stop, bpm)
		if stopTick <= startTick {
			continue
		}

		notes := ChordNotes(seg.Label, opts.Bass)

		tr.Add(startTick-cursor, smf.MetaMarker(seg.Label.String()))
		for _, key := range notes {
			tr.Add(0, midi.NoteOn(opts.Channel, key, velocity))
		}
		for j, key := range notes {
			delta := uint32(0)
			if j == 0 {
				delta = stopTick - startTick
			}
			tr.Add(delta, midi.NoteOff(opts.Channel, key))
		}
		cursor = stopTick
	}
	tr.Close(0)

	if err := s.Add(tr); err != nil {
		return fmt.Errorf("failed to add chord track: %w", err)
	}

	if _, err := s.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write midi file: %w", err)
	}
	return nil
}
