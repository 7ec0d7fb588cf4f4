package transcode

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const probeJSON = `{
  "streams": [
    {
      "index": 0,
      "codec_name": "mp3",
      "codec_long_name": "MP3 (MPEG audio layer 3)",
      "codec_type": "audio",
      "sample_rate": "44100",
      "channels": 2,
      "duration": "12.503500",
      "bit_rate": "192000"
    }
  ]
}`

func TestParseFFprobeOutput(t *testing.T) {
	meta, err := parseFFprobeOutput([]byte(probeJSON))
	require.NoError(t, err)

	assert.Equal(t, 44100, meta.SampleRate)
	assert.Equal(t, 2, meta.Channels)
	assert.Equal(t, "mp3", meta.Codec)
	assert.InDelta(t, 12.5035, meta.Duration, 1e-9)
	assert.Equal(t, 192000, meta.Bitrate)
	assert.Equal(t, "MP3 (MPEG audio layer 3)", meta.Format)
}

func TestParseFFprobeOutputErrors(t *testing.T) {
	cases := map[string]string{
		"invalid json":  `{"streams": [`,
		"no streams":    `{"streams": []}`,
		"video stream":  `{"streams": [{"codec_type": "video", "sample_rate": "44100", "channels": 2}]}`,
		"bad rate":      `{"streams": [{"codec_type": "audio", "sample_rate": "n/a", "channels": 2}]}`,
		"zero channels": `{"streams": [{"codec_type": "audio", "sample_rate": "44100", "channels": 0}]}`,
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseFFprobeOutput([]byte(input))
			assert.Error(t, err)
		})
	}

	_, err := parseFFprobeOutput([]byte(`{"streams": []}`))
	assert.ErrorIs(t, err, ErrNoAudio)
}

func TestBytesToFloat64(t *testing.T) {
	want := []float64{0.5, -1, math.Pi}
	raw := make([]byte, 0, len(want)*8+3)
	for _, v := range want {
		raw = binary.LittleEndian.AppendUint64(raw, math.Float64bits(v))
	}
	raw = append(raw, 1, 2, 3) // partial trailing sample

	assert.Equal(t, want, bytesToFloat64(raw))
	assert.Nil(t, bytesToFloat64([]byte{1, 2}))
}

func TestBuildFFmpegArgs(t *testing.T) {
	d := NewDecoder(&DecoderConfig{MaxDuration: 30 * time.Second, FFmpegPath: "ffmpeg", FFprobePath: "ffprobe"})

	rate, channels := d.outputFormat(&AudioMetadata{SampleRate: 48000, Channels: 2})
	assert.Equal(t, 48000, rate)
	assert.Equal(t, 2, channels)

	args := d.buildFFmpegArgs("song.flac", rate, channels)
	assert.Contains(t, args, "f64le")
	assert.Contains(t, args, "48000")
	assert.Contains(t, args, "30.00")
	assert.Equal(t, "pipe:1", args[len(args)-1])

	d = NewDecoder(&DecoderConfig{TargetSampleRate: 22050, TargetChannels: 1})
	rate, channels = d.outputFormat(&AudioMetadata{SampleRate: 48000, Channels: 2})
	assert.Equal(t, 22050, rate)
	assert.Equal(t, 1, channels)
}

func TestValidateConfigRejectsBadTargets(t *testing.T) {
	assert.Error(t, NewDecoder(&DecoderConfig{TargetChannels: 9}).ValidateConfig())
	assert.Error(t, NewDecoder(&DecoderConfig{TargetSampleRate: -1}).ValidateConfig())
	assert.Error(t, NewDecoder(&DecoderConfig{FFmpegPath: "definitely-not-ffmpeg-xyz", FFprobePath: "definitely-not-ffprobe-xyz"}).ValidateConfig())
}
