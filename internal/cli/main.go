// Package cli is the command-line entry point for a dataset
// construction run.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vid2set/vid2set/internal/config"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := &cobra.Command{
		Use:   "vid2set <manifest>",
		Short: "Build a sharded video dataset from a URL manifest",
		Long: "vid2set reads a manifest of video references (JSONL, CSV or TSV), " +
			"fetches each video, runs it through the configured subsampling " +
			"chain and packs the results into fixed-size tar shards.",
		Version:      fmt.Sprintf("%s (%s)", config.Version, config.GitCommit),
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0])
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	defaults := config.Default()

	f := root.Flags()
	f.String("out", defaults.OutputDir, "Output directory for shards and the run log")
	f.String("tmp", defaults.TmpDir, "Scratch directory for downloads and intermediates")

	f.Int("download-size", defaults.DownloadSize, "Smallest rendition height to accept")
	f.Int("audio-rate", defaults.DownloadAudioRate, "Minimum audio sample rate, 0 for any")
	f.Duration("timeout", defaults.Timeout, "Hard bound per fetch")
	f.StringSlice("cookies", nil, "Cookie files rotated across portal fetches")
	f.Bool("write-subtitles", false, "Fetch subtitle tracks alongside the video")
	f.StringSlice("subtitle-langs", defaults.SubtitleLangs, "Subtitle languages to request")
	f.Bool("get-info", false, "Request extended source metadata")
	f.String("audio-format", "", "Extract the audio track in this format, empty for video only")

	f.StringSlice("stages", defaults.Stages, "Enabled chain stages in any order")
	f.String("cut-mode", defaults.CutDetectionMode, "Scene selection: all or longest")
	f.Float64("cut-threshold", defaults.CutThreshold, "Scene-change sensitivity, 0..1")
	f.Int("min-scene-len", defaults.MinSceneLen, "Minimum scene length in frames")
	f.Bool("cuts-are-clips", false, "Clip at detected scene boundaries")
	f.Float64("min-clip", defaults.MinClipLength, "Minimum clip length in seconds")
	f.Float64("max-clip", defaults.MaxClipLength, "Maximum clip length in seconds")
	f.String("max-length-strategy", defaults.MaxLengthStrategy, "Overlong span handling: all or first")
	f.String("precision", defaults.Precision, "Clip boundary precision: exact or keyframe_adjusted")
	f.Int("width", defaults.TargetWidth, "Target frame width")
	f.Int("height", defaults.TargetHeight, "Target frame height")
	f.StringSlice("resize-mode", defaults.ResizeMode, "Resize operations: scale, crop, pad")
	f.Int("fps", 0, "Target frame rate, 0 disables the stage")
	f.Bool("interpolate", false, "Interpolate frames when raising the frame rate")
	f.Bool("extract-keyframes", false, "Record keyframe timestamps in sample metadata")
	f.Bool("captions-from-subtitles", false, "Use the subtitle transcript as the caption")

	f.Int("shard-size", defaults.SamplesPerShard, "Samples per shard")
	f.Int("shard-digits", defaults.OOMShardCount, "Digit width of shard indices")

	f.Int("workers", defaults.Workers, "Parallel worker groups")
	f.Int("threads", defaults.ThreadsPerWorker, "Concurrent references per worker")
	f.Int("subjob-size", defaults.SubjobSize, "References per subjob")

	f.Int("status-port", 0, "Serve run progress on this port, 0 disables")

	f.String("log-level", defaults.LogLevel, "Log level: debug, info, warn, error")
	f.String("log-format", defaults.LogFormat, "Log format: json, console or auto")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
