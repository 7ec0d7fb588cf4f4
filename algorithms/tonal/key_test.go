package tonal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyNames(t *testing.T) {
	assert.Equal(t, "C major", GetKeyName(0, KeyModeMajor))
	assert.Equal(t, "A minor", Key{Root: 9, Mode: KeyModeMinor}.Name())
	assert.Equal(t, "F#", NoteName(-6))
	assert.Equal(t, "B", NoteName(23))
}

func TestParseKey(t *testing.T) {
	cases := []struct {
		in   string
		root int
		mode KeyMode
	}{
		{"C major", 0, KeyModeMajor},
		{"A minor", 9, KeyModeMinor},
		{"F# major", 6, KeyModeMajor},
		{"Bb", 10, KeyModeMajor},
		{"Eb minor", 3, KeyModeMinor},
	}

	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			k, err := ParseKey(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.root, k.Root)
			assert.Equal(t, tc.mode, k.Mode)
			assert.Equal(t, 1.0, k.Confidence)
		})
	}

	_, err := ParseKey("   ")
	assert.Error(t, err)
}

func TestKeyJSON(t *testing.T) {
	data, err := json.Marshal(Key{Root: 9, Mode: KeyModeMinor, Confidence: 0.75})
	require.NoError(t, err)
	assert.JSONEq(t, `{"root":9,"mode":"minor","confidence":0.75}`, string(data))

	var k Key
	require.NoError(t, json.Unmarshal(data, &k))
	assert.Equal(t, KeyModeMinor, k.Mode)

	assert.Error(t, json.Unmarshal([]byte(`{"mode":"dorian"}`), &k))
}

func TestScaleMembership(t *testing.T) {
	assert.Equal(t, [7]int{0, 2, 4, 5, 7, 9, 11}, ScaleDegrees(0, KeyModeMajor))
	assert.Equal(t, [7]int{9, 11, 0, 2, 4, 5, 7}, ScaleDegrees(9, KeyModeMinor))
	assert.True(t, InScale(10, 5, KeyModeMajor))
	assert.False(t, InScale(11, 5, KeyModeMajor))
}
