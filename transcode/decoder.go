package transcode

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/RyanBlaney/sonido-acordes/logging"
)

// AudioData represents decoded, interleaved audio
type AudioData struct {
	PCM        []float64      `json:"-"` // interleaved samples
	SampleRate int            `json:"sample_rate"`
	Channels   int            `json:"channels"`
	Duration   time.Duration  `json:"duration"`
	Metadata   *AudioMetadata `json:"metadata,omitempty"`
}

// AudioMetadata holds detected audio properties from FFprobe
type AudioMetadata struct {
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
	Codec      string  `json:"codec"`
	Duration   float64 `json:"duration"`
	Bitrate    int     `json:"bitrate"`
	Format     string  `json:"format"`
}

// DecoderConfig holds decoder configuration. Zero TargetSampleRate or
// TargetChannels keeps the source value so downmix and resampling can happen
// in-process.
type DecoderConfig struct {
	TargetSampleRate int           `json:"target_sample_rate"`
	TargetChannels   int           `json:"target_channels"`
	MaxDuration      time.Duration `json:"max_duration"`
	FFmpegPath       string        `json:"ffmpeg_path"`  // Path to ffmpeg binary
	FFprobePath      string        `json:"ffprobe_path"` // Path to ffprobe binary
	Timeout          time.Duration `json:"timeout"`      // Timeout for ffmpeg operations
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() *DecoderConfig {
	return &DecoderConfig{
		TargetSampleRate: 0, // native
		TargetChannels:   0, // native
		MaxDuration:      0, // No limit
		FFmpegPath:       "ffmpeg",
		FFprobePath:      "ffprobe",
		Timeout:          60 * time.Second,
	}
}

// ErrNoAudio is returned when the input holds no decodable audio stream
var ErrNoAudio = errors.New("no audio decoded")

// Decoder handles audio decoding using FFmpeg
type Decoder struct {
	config *DecoderConfig
}

// NewDecoder creates a new audio decoder
func NewDecoder(config *DecoderConfig) *Decoder {
	if config == nil {
		config = DefaultDecoderConfig()
	}
	return &Decoder{config: config}
}

// DecodeFile decodes an audio file and returns interleaved PCM
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeFile",
		"filename":  filename,
	})

	logger.Debug("Starting audio file decode")

	metadata, err := d.probe(ctx, filename, nil)
	if err != nil {
		logger.Error(err, "Failed to probe audio file")
		return nil, err
	}

	return d.decode(ctx, filename, nil, metadata, logger)
}

// DecodeBytes decodes audio from an in-memory container
func (d *Decoder) DecodeBytes(ctx context.Context, data []byte) (*AudioData, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_decoder",
		"function":  "DecodeBytes",
		"data_size": len(data),
	})

	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio data: %w", ErrNoAudio)
	}

	metadata, err := d.probe(ctx, "pipe:0", data)
	if err != nil {
		logger.Error(err, "Failed to probe audio metadata")
		return nil, err
	}

	return d.decode(ctx, "pipe:0", data, metadata, logger)
}

// DecodeReader decodes audio from an io.Reader
func (d *Decoder) DecodeReader(ctx context.Context, reader io.Reader) (*AudioData, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	return d.DecodeBytes(ctx, data)
}

func (d *Decoder) command(ctx context.Context, path string, args []string, stdin []byte) (*exec.Cmd, context.CancelFunc) {
	cancel := context.CancelFunc(func() {})
	if d.config.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
	}
	cmd := exec.CommandContext(ctx, path, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	return cmd, cancel
}

// probe runs ffprobe on a file or on stdin data
func (d *Decoder) probe(ctx context.Context, input string, data []byte) (*AudioMetadata, error) {
	args := []string{
		"-v", "quiet", // Suppress verbose output
		"-print_format", "json", // JSON output
		"-show_streams",          // Show stream info
		"-select_streams", "a:0", // First audio stream only
		input,
	}

	cmd, cancel := d.command(ctx, d.config.FFprobePath, args, data)
	defer cancel()

	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			return nil, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, string(exitError.Stderr))
		}
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseFFprobeOutput(output)
}

// parseFFprobeOutput extracts the first audio stream from ffprobe JSON
func parseFFprobeOutput(jsonData []byte) (*AudioMetadata, error) {
	if !gjson.ValidBytes(jsonData) {
		return nil, fmt.Errorf("failed to parse ffprobe output: invalid json")
	}

	stream := gjson.GetBytes(jsonData, "streams.0")
	if !stream.Exists() {
		return nil, fmt.Errorf("no audio streams found: %w", ErrNoAudio)
	}

	if codecType := stream.Get("codec_type").String(); codecType != "audio" {
		return nil, fmt.Errorf("stream is not audio type: %s", codecType)
	}

	// ffprobe reports sample_rate, duration and bit_rate as strings
	sampleRate, err := strconv.Atoi(stream.Get("sample_rate").String())
	if err != nil || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %q", stream.Get("sample_rate").String())
	}

	channels := int(stream.Get("channels").Int())
	if channels <= 0 || channels > 8 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}

	return &AudioMetadata{
		SampleRate: sampleRate,
		Channels:   channels,
		Codec:      stream.Get("codec_name").String(),
		Duration:   stream.Get("duration").Float(),
		Bitrate:    int(stream.Get("bit_rate").Int()),
		Format:     stream.Get("codec_long_name").String(),
	}, nil
}

// outputFormat resolves the rate and channel count ffmpeg should emit
func (d *Decoder) outputFormat(metadata *AudioMetadata) (int, int) {
	rate, channels := metadata.SampleRate, metadata.Channels
	if d.config.TargetSampleRate > 0 {
		rate = d.config.TargetSampleRate
	}
	if d.config.TargetChannels > 0 {
		channels = d.config.TargetChannels
	}
	return rate, channels
}

// buildFFmpegArgs builds the ffmpeg arguments for raw float64 output
func (d *Decoder) buildFFmpegArgs(input string, rate, channels int) []string {
	args := []string{
		"-v", "error",
		"-i", input,
		"-map", "0:a:0",
		"-vn",         // No video
		"-f", "f64le", // Output raw float64 little-endian
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(rate),
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.2f", d.config.MaxDuration.Seconds()))
	}

	return append(args, "pipe:1")
}

func (d *Decoder) decode(ctx context.Context, input string, data []byte, metadata *AudioMetadata, logger logging.Logger) (*AudioData, error) {
	rate, channels := d.outputFormat(metadata)
	args := d.buildFFmpegArgs(input, rate, channels)

	cmd, cancel := d.command(ctx, d.config.FFmpegPath, args, data)
	defer cancel()

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	startTime := time.Now()
	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			logger.Error(err, "Ffmpeg decode failed", logging.Fields{
				"stderr": string(exitError.Stderr),
			})
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	samples := bytesToFloat64(output)
	if len(samples) == 0 {
		return nil, ErrNoAudio
	}

	samplesPerChannel := len(samples) / channels
	duration := time.Duration(samplesPerChannel) * time.Second / time.Duration(rate)

	logger.Debug("FFmpeg decode completed successfully", logging.Fields{
		"input_sample_rate":  metadata.SampleRate,
		"input_channels":     metadata.Channels,
		"input_codec":        metadata.Codec,
		"output_samples":     len(samples),
		"output_sample_rate": rate,
		"output_channels":    channels,
		"output_duration":    duration.Seconds(),
		"decode_time":        time.Since(startTime).Seconds(),
	})

	return &AudioData{
		PCM:        samples[:samplesPerChannel*channels],
		SampleRate: rate,
		Channels:   channels,
		Duration:   duration,
		Metadata:   metadata,
	}, nil
}

// bytesToFloat64 converts raw little-endian float64 bytes to samples,
// dropping a trailing partial sample
func bytesToFloat64(data []byte) []float64 {
	sampleCount := len(data) / 8
	if sampleCount == 0 {
		return nil
	}

	samples := make([]float64, sampleCount)
	for i := range sampleCount {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}

	return samples
}

// ValidateConfig validates the decoder configuration and checks that the
// ffmpeg binaries can be found
func (d *Decoder) ValidateConfig() error {
	if d.config.TargetSampleRate < 0 {
		return fmt.Errorf("target sample rate must not be negative: %d", d.config.TargetSampleRate)
	}
	if d.config.TargetChannels < 0 || d.config.TargetChannels > 8 {
		return fmt.Errorf("target channels must be between 0 and 8: %d", d.config.TargetChannels)
	}
	for _, bin := range []string{d.config.FFmpegPath, d.config.FFprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("%s not available: %w", bin, err)
		}
	}
	return nil
}
