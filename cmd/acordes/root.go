package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-acordes/detector"
	"github.com/RyanBlaney/sonido-acordes/logging"
	"github.com/RyanBlaney/sonido-acordes/transcode"
)

var (
	envFiles    []string
	logLevel    string
	maxDuration time.Duration

	cfg *detector.Config
)

var rootCmd = &cobra.Command{
	Use:   "acordes",
	Short: "Chord, key and tempo detection",
	Long: `acordes estimates the key, tempo and a time-aligned chord timeline of an
audio file. Any format ffmpeg can read is accepted.

Settings come from ACORDES_* environment variables, optionally loaded from
.env files.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := detector.LoadConfigFromEnv(envFiles...)
		if err != nil {
			return err
		}
		cfg = loaded

		level := logLevel
		if level == "" {
			level = os.Getenv("ACORDES_LOG_LEVEL")
		}
		if level != "" {
			logging.SetLevel(logging.ParseLevel(level))
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env", nil, ".env files to load (default ./.env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (default ACORDES_LOG_LEVEL or info)")
	rootCmd.PersistentFlags().DurationVar(&maxDuration, "max-duration", 0, "only analyze the first part of the input (0 = all)")
}

func newAudioDecoder() *transcode.Decoder {
	decoderCfg := transcode.DefaultDecoderConfig()
	decoderCfg.MaxDuration = maxDuration
	return transcode.NewDecoder(decoderCfg)
}

func toAudio(data *transcode.AudioData) detector.Audio {
	return detector.Audio{
		PCM:        data.PCM,
		SampleRate: data.SampleRate,
		Channels:   data.Channels,
	}
}
