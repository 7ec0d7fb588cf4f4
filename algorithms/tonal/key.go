package tonal

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/music-theory.v0/key"
	"gopkg.in/music-theory.v0/note"

	"github.com/RyanBlaney/sonido-acordes/algorithms/common"
)

// KeyMode represents major or minor mode
type KeyMode int

const (
	KeyModeMajor KeyMode = iota
	KeyModeMinor
)

// String renders the mode as "major" or "minor"
func (m KeyMode) String() string {
	if m == KeyModeMinor {
		return "minor"
	}
	return "major"
}

// MarshalJSON encodes the mode by name
func (m KeyMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts "major" or "minor"
func (m *KeyMode) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch strings.ToLower(name) {
	case "major":
		*m = KeyModeMajor
	case "minor":
		*m = KeyModeMinor
	default:
		return fmt.Errorf("unknown key mode %q", name)
	}
	return nil
}

// Key is a tonal centre: root pitch class, mode and estimation confidence
type Key struct {
	Root       int     `json:"root"` // 0=C, 1=C#, ..., 11=B
	Mode       KeyMode `json:"mode"`
	Confidence float64 `json:"confidence"`
}

// DefaultKey is returned for degenerate input
func DefaultKey() Key {
	return Key{Root: 0, Mode: KeyModeMajor, Confidence: 0.5}
}

// Name returns the human-readable key, e.g. "A minor"
func (k Key) Name() string {
	return GetKeyName(k.Root, k.Mode)
}

// SameTonality reports whether two keys share root and mode
func (k Key) SameTonality(other Key) bool {
	return k.Root == other.Root && k.Mode == other.Mode
}

var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// NoteName returns the sharp spelling of a pitch class
func NoteName(pc int) string {
	return noteNames[common.PitchClass(pc)]
}

// GetKeyName returns the human-readable name for a key
func GetKeyName(root int, mode KeyMode) string {
	return NoteName(root) + " " + mode.String()
}

// ScaleDegrees returns the seven pitch classes of the natural scale of a key
func ScaleDegrees(root int, mode KeyMode) [7]int {
	intervals := [7]int{0, 2, 4, 5, 7, 9, 11}
	if mode == KeyModeMinor {
		intervals = [7]int{0, 2, 3, 5, 7, 8, 10}
	}
	var out [7]int
	for i, iv := range intervals {
		out[i] = common.PitchClass(root + iv)
	}
	return out
}

// InScale reports whether pc belongs to the natural scale of a key
func InScale(pc, root int, mode KeyMode) bool {
	pc = common.PitchClass(pc)
	for _, d := range ScaleDegrees(root, mode) {
		if d == pc {
			return true
		}
	}
	return false
}

var noteClassPitch = map[note.Class]int{
	note.C: 0, note.Cs: 1, note.D: 2, note.Ds: 3, note.E: 4, note.F: 5,
	note.Fs: 6, note.G: 7, note.Gs: 8, note.A: 9, note.As: 10, note.B: 11,
}

// ParseKey reads a key name such as "A minor", "Bb", "F# major" or "c#m".
// The returned Key has confidence 1.
func ParseKey(name string) (Key, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Key{}, fmt.Errorf("empty key name")
	}

	parsed := key.Of(trimmed)
	pc, ok := noteClassPitch[parsed.Root]
	if !ok {
		return Key{}, fmt.Errorf("unrecognised key %q", name)
	}

	mode := KeyModeMajor
	if parsed.Mode == key.Minor {
		mode = KeyModeMinor
	}

	return Key{Root: pc, Mode: mode, Confidence: 1.0}, nil
}
