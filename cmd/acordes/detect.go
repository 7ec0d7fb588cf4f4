package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/RyanBlaney/sonido-acordes/algorithms/tonal"
	"github.com/RyanBlaney/sonido-acordes/detector"
	"github.com/RyanBlaney/sonido-acordes/export"
)

var (
	detectJSON bool
	detectMIDI string
	detectBeam string
	detectKey  string
)

var detectCmd = &cobra.Command{
	Use:   "detect <audio-file>",
	Short: "Detects key, tempo and chords of an audio file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return detect(cmd, args[0])
	},
}

func init() {
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "print the result as JSON")
	detectCmd.Flags().StringVar(&detectMIDI, "midi", "", "write the chord timeline as a MIDI file")
	detectCmd.Flags().StringVar(&detectBeam, "beam", "", "initial beam width: narrow or full (default from config)")
	detectCmd.Flags().StringVar(&detectKey, "key", "", `pin the key instead of estimating it, e.g. "A minor"`)
	rootCmd.AddCommand(detectCmd)
}

func detect(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()

	opts := &detector.Options{Beam: detector.BeamMode(detectBeam)}
	if detectKey != "" {
		key, err := tonal.ParseKey(detectKey)
		if err != nil {
			return err
		}
		opts.KeyHint = &key
	}

	d, err := detector.NewDetector(cfg)
	if err != nil {
		return err
	}

	data, err := newAudioDecoder().DecodeFile(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}

	result, err := d.Detect(ctx, toAudio(data), opts)
	if err != nil {
		return err
	}

	if detectMIDI != "" {
		if err := writeMIDIFile(detectMIDI, result); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if detectJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	printResult(out, path, result)
	return nil
}

func writeMIDIFile(path string, result *detector.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create midi file: %w", err)
	}
	defer f.Close()

	opts := export.DefaultMIDIOptions()
	if result.Tempo.Known() {
		opts.BPM = result.Tempo.BPM
	}
	if err := export.WriteMIDI(f, result.Timeline, result.Duration, opts); err != nil {
		return err
	}
	return f.Close()
}

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	timeColor   = color.New(color.Faint)
	chordColor  = color.New(color.FgGreen)
	slashColor  = color.New(color.FgYellow)
)

func printResult(w io.Writer, path string, result *detector.Result) {
	headerColor.Fprintf(w, "%s\n", path)
	fmt.Fprintf(w, "  key:    %s (confidence %.2f", result.Key.Name(), result.Key.Confidence)
	if result.KeyChanges > 0 {
		fmt.Fprintf(w, ", revised from %s", result.InitialKey.Name())
	}
	fmt.Fprintln(w, ")")

	if result.Tempo.Known() {
		fmt.Fprintf(w, "  tempo:  %.1f BPM\n", result.Tempo.BPM)
	} else {
		fmt.Fprintln(w, "  tempo:  unknown")
	}
	fmt.Fprintf(w, "  length: %.1f s, %d frames\n\n", result.Duration, result.Frames)

	for _, seg := range result.Timeline {
		timeColor.Fprintf(w, "%8.2f  ", seg.Time)
		c := chordColor
		if seg.Label.Bass != tonal.NoBassNote && seg.Label.Bass != seg.Label.Root {
			c = slashColor
		}
		c.Fprintln(w, seg.Label.String())
	}
}
