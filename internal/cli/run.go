package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vid2set/vid2set/internal/config"
	"github.com/vid2set/vid2set/internal/credentials"
	"github.com/vid2set/vid2set/internal/distribute"
	"github.com/vid2set/vid2set/internal/fetch"
	"github.com/vid2set/vid2set/internal/ffmpeg"
	"github.com/vid2set/vid2set/internal/logging"
	"github.com/vid2set/vid2set/internal/manifest"
	"github.com/vid2set/vid2set/internal/outcomes"
	"github.com/vid2set/vid2set/internal/shard"
	"github.com/vid2set/vid2set/internal/status"
)

func run(cmd *cobra.Command, manifestPath string) error {
	startTime := time.Now()

	cfg := config.Default()
	if err := cfg.ApplyEnv(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	applyFlags(cmd.Flags(), &cfg)
	cfg.ManifestPath = manifestPath

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting vid2set",
		"version", config.Version,
		"commit", config.GitCommit,
		"manifest", logging.SanitizePath(cfg.ManifestPath),
		"output_dir", logging.SanitizePath(cfg.OutputDir),
	)

	refs, err := manifest.Load(cfg.ManifestPath)
	if err != nil {
		return fmt.Errorf("load manifest: %w", err)
	}
	if len(refs) == 0 {
		return fmt.Errorf("manifest %s holds no references", manifestPath)
	}

	if err := os.MkdirAll(cfg.TmpDir, 0o755); err != nil {
		return fmt.Errorf("create tmp dir: %w", err)
	}

	db, err := outcomes.Open(filepath.Join(cfg.OutputDir, "run.db"), logger)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer db.Close()
	repo := outcomes.NewRepository(db.Conn())

	pool := credentials.NewPool(cfg.CookieFiles, 0, logger)
	if !pool.Empty() {
		logger.Info("credential pool ready", "slots", pool.Active())
	}

	tool, err := ffmpeg.NewExecutor(cfg.FFmpegPath, cfg.FFprobePath, logger)
	if err != nil {
		return err
	}

	fetcher := buildFetcher(&cfg, logger)

	sink, err := shard.NewFSSink(cfg.OutputDir)
	if err != nil {
		return err
	}

	var dist *distribute.Distributor
	writer := shard.NewWriter(cfg.SamplesPerShard, cfg.OOMShardCount, sink, logger, func(ev shard.WriteEvent) {
		dist.ShardWritten(ev)
	})
	dist = distribute.New(&cfg, fetcher, tool, pool, writer, repo, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.StatusPort > 0 {
		statusServer := status.NewServer(status.ServerConfig{
			Port:       cfg.StatusPort,
			Progress:   dist.Progress(),
			Repository: repo,
			Logger:     logger,
			StartTime:  startTime,
		})
		go func() {
			if err := statusServer.Start(); err != nil {
				logger.Error("status server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := statusServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shut down status server", "error", err)
			}
		}()
	}

	sum, runErr := dist.Run(ctx, refs)

	fmt.Fprintf(cmd.OutOrStdout(),
		"processed %d references in %s: %d succeeded, %d transient failures, %d permanent failures\n",
		sum.Total(), time.Since(startTime).Round(time.Second),
		sum.Succeeded, sum.TransientFailed, sum.PermanentFailed)
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d samples across %d shards to %s\n",
		sum.Samples, sum.Shards, cfg.OutputDir)

	return runErr
}

// buildFetcher assembles the direct/portal router. A missing yt-dlp
// binary degrades portal references to permanent failures instead of
// refusing to start, so local-file manifests run without it.
func buildFetcher(cfg *config.Config, logger *slog.Logger) fetch.Fetcher {
	policy := fetch.RenditionPolicy{
		VideoHeight: cfg.DownloadSize,
		AudioRate:   cfg.DownloadAudioRate,
	}

	direct := fetch.NewDirectFetcher(&http.Client{}, cfg.TmpDir, cfg.Timeout, logger)

	var portal fetch.Fetcher
	p, err := fetch.NewPortalFetcher(fetch.PortalConfig{
		BinaryPath:     cfg.YtDlpPath,
		TmpDir:         cfg.TmpDir,
		Timeout:        cfg.Timeout,
		Policy:         policy,
		WriteSubtitles: cfg.WriteSubtitles,
		SubtitleLangs:  cfg.SubtitleLangs,
		GetInfo:        cfg.GetInfo,
		Logger:         logger,
	})
	if err != nil {
		logger.Warn("portal fetcher unavailable, only direct links will resolve", "error", err)
		portal = fetch.UnavailableFetcher{Reason: err.Error()}
	} else {
		portal = p
	}

	return &fetch.Router{Direct: direct, Portal: portal}
}

// applyFlags overlays explicitly set flags onto the configuration.
// Flags win over environment variables.
func applyFlags(f *pflag.FlagSet, cfg *config.Config) {
	setString(f, "out", &cfg.OutputDir)
	setString(f, "tmp", &cfg.TmpDir)

	setInt(f, "download-size", &cfg.DownloadSize)
	setInt(f, "audio-rate", &cfg.DownloadAudioRate)
	setDuration(f, "timeout", &cfg.Timeout)
	setSlice(f, "cookies", &cfg.CookieFiles)
	setBool(f, "write-subtitles", &cfg.WriteSubtitles)
	setSlice(f, "subtitle-langs", &cfg.SubtitleLangs)
	setBool(f, "get-info", &cfg.GetInfo)
	setString(f, "audio-format", &cfg.AudioFormat)

	setSlice(f, "stages", &cfg.Stages)
	setString(f, "cut-mode", &cfg.CutDetectionMode)
	setFloat(f, "cut-threshold", &cfg.CutThreshold)
	setInt(f, "min-scene-len", &cfg.MinSceneLen)
	setBool(f, "cuts-are-clips", &cfg.CutsAreClips)
	setFloat(f, "min-clip", &cfg.MinClipLength)
	setFloat(f, "max-clip", &cfg.MaxClipLength)
	setString(f, "max-length-strategy", &cfg.MaxLengthStrategy)
	setString(f, "precision", &cfg.Precision)
	setInt(f, "width", &cfg.TargetWidth)
	setInt(f, "height", &cfg.TargetHeight)
	setSlice(f, "resize-mode", &cfg.ResizeMode)
	setInt(f, "fps", &cfg.TargetFrameRate)
	setBool(f, "interpolate", &cfg.FrameInterpolation)
	setBool(f, "extract-keyframes", &cfg.ExtractKeyframes)
	setBool(f, "captions-from-subtitles", &cfg.CaptionsFromSubtitles)

	setInt(f, "shard-size", &cfg.SamplesPerShard)
	setInt(f, "shard-digits", &cfg.OOMShardCount)

	setInt(f, "workers", &cfg.Workers)
	setInt(f, "threads", &cfg.ThreadsPerWorker)
	setInt(f, "subjob-size", &cfg.SubjobSize)

	setInt(f, "status-port", &cfg.StatusPort)

	setString(f, "log-level", &cfg.LogLevel)
	setString(f, "log-format", &cfg.LogFormat)
}

func setString(f *pflag.FlagSet, name string, dst *string) {
	if f.Changed(name) {
		*dst, _ = f.GetString(name)
	}
}

func setInt(f *pflag.FlagSet, name string, dst *int) {
	if f.Changed(name) {
		*dst, _ = f.GetInt(name)
	}
}

func setFloat(f *pflag.FlagSet, name string, dst *float64) {
	if f.Changed(name) {
		*dst, _ = f.GetFloat64(name)
	}
}

func setBool(f *pflag.FlagSet, name string, dst *bool) {
	if f.Changed(name) {
		*dst, _ = f.GetBool(name)
	}
}

func setSlice(f *pflag.FlagSet, name string, dst *[]string) {
	if f.Changed(name) {
		*dst, _ = f.GetStringSlice(name)
	}
}

func setDuration(f *pflag.FlagSet, name string, dst *time.Duration) {
	if f.Changed(name) {
		*dst, _ = f.GetDuration(name)
	}
}
