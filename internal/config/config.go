// Package config holds the full option surface of the pipeline.
// Defaults are production-ready; environment variables override them and
// CLI flags override both. Validation runs once at startup so invalid
// parameter combinations never surface mid-run.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	EnvLogLevel   = "VID2SET_LOG_LEVEL"
	EnvLogFormat  = "VID2SET_LOG_FORMAT"
	EnvOutputDir  = "VID2SET_OUTPUT_DIR"
	EnvTmpDir     = "VID2SET_TMP_DIR"
	EnvCookies    = "VID2SET_COOKIES_FILE"
	EnvStatusPort = "VID2SET_STATUS_PORT"
	EnvFFmpeg     = "VID2SET_FFMPEG"
	EnvFFprobe    = "VID2SET_FFPROBE"
	EnvYtDlp      = "VID2SET_YTDLP"
)

// Stage names accepted in Config.Stages, in their canonical chain order.
const (
	StageCutDetection = "cut_detection"
	StageClipping     = "clipping"
	StageResolution   = "resolution"
	StageFrameRate    = "frame_rate"
	StageProbe        = "probe"
)

// Config parametrizes one dataset construction run.
type Config struct {
	// Input and output.
	ManifestPath string
	OutputDir    string
	TmpDir       string

	// Fetching.
	DownloadSize      int           // smallest rendition height to accept
	DownloadAudioRate int           // minimum audio sample rate, 0 = any
	Timeout           time.Duration // hard bound per fetch
	CookieFiles       []string      // credential slots for the portal fetcher
	WriteSubtitles    bool
	SubtitleLangs     []string
	GetInfo           bool   // request extended source metadata
	AudioFormat       string // extract audio in this format, "" = video only

	// Subsampling chain. Stages run in canonical order; only the named
	// ones are enabled.
	Stages []string

	CutDetectionMode string  // "all" or "longest"
	CutThreshold     float64 // scene-change sensitivity, 0..1
	MinSceneLen      int     // frames; shorter scenes merge into neighbors
	CutFrameRate     int     // detection frame rate, 0 = native
	CutsAreClips     bool    // detected cuts become clip boundaries

	MinClipLength     float64 // seconds
	MaxClipLength     float64 // seconds
	MaxLengthStrategy string  // "all" or "first"
	Precision         string  // "exact" or "keyframe_adjusted"

	TargetWidth  int
	TargetHeight int
	ResizeMode   []string // ordered subset of scale, crop, pad

	TargetFrameRate    int // 0 = stage disabled
	FrameInterpolation bool

	ExtractKeyframes      bool
	CaptionsFromSubtitles bool

	// Storage.
	SamplesPerShard int
	OOMShardCount   int // digit width of shard indices

	// Distribution.
	Workers          int // parallel worker groups
	ThreadsPerWorker int // concurrent references per worker
	SubjobSize       int // references per subjob

	// Status server; 0 disables it.
	StatusPort int

	// Tool paths; empty means look up on PATH.
	FFmpegPath  string
	FFprobePath string
	YtDlpPath   string

	LogLevel  string
	LogFormat string
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		OutputDir:         "dataset",
		TmpDir:            os.TempDir(),
		DownloadSize:      360,
		DownloadAudioRate: 44100,
		Timeout:           60 * time.Second,
		SubtitleLangs:     []string{"en"},
		Stages:            []string{StageResolution, StageProbe},
		CutDetectionMode:  "all",
		CutThreshold:      0.27,
		MinSceneLen:       15,
		MinClipLength:     4.0,
		MaxClipLength:     20.0,
		MaxLengthStrategy: "all",
		Precision:         "keyframe_adjusted",
		TargetWidth:       256,
		TargetHeight:      256,
		ResizeMode:        []string{"scale", "crop", "pad"},
		SamplesPerShard:   1000,
		OOMShardCount:     5,
		Workers:           1,
		ThreadsPerWorker:  8,
		SubjobSize:        1000,
		LogLevel:          "info",
		LogFormat:         "auto",
	}
}

// ApplyEnv overlays environment variable overrides.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv(EnvOutputDir); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv(EnvTmpDir); v != "" {
		c.TmpDir = v
	}
	if v := os.Getenv(EnvCookies); v != "" {
		c.CookieFiles = splitList(v)
	}
	if v := os.Getenv(EnvStatusPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvStatusPort, err)
		}
		c.StatusPort = port
	}
	if v := os.Getenv(EnvFFmpeg); v != "" {
		c.FFmpegPath = v
	}
	if v := os.Getenv(EnvFFprobe); v != "" {
		c.FFprobePath = v
	}
	if v := os.Getenv(EnvYtDlp); v != "" {
		c.YtDlpPath = v
	}
	return nil
}

// Validate rejects invalid parameter combinations before any work starts.
func (c *Config) Validate() error {
	if c.ManifestPath == "" {
		return fmt.Errorf("manifest path is required")
	}
	if c.SamplesPerShard < 1 {
		return fmt.Errorf("samples per shard must be >= 1, got %d", c.SamplesPerShard)
	}
	if c.OOMShardCount < 1 || c.OOMShardCount > 10 {
		return fmt.Errorf("shard digit count must be in [1,10], got %d", c.OOMShardCount)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	}
	if c.ThreadsPerWorker < 1 {
		return fmt.Errorf("threads per worker must be >= 1, got %d", c.ThreadsPerWorker)
	}
	if c.SubjobSize < 1 {
		return fmt.Errorf("subjob size must be >= 1, got %d", c.SubjobSize)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.Timeout)
	}

	for _, s := range c.Stages {
		switch s {
		case StageCutDetection, StageClipping, StageResolution, StageFrameRate, StageProbe:
		default:
			return fmt.Errorf("unknown subsampling stage %q", s)
		}
	}

	if c.StageEnabled(StageCutDetection) {
		if c.CutDetectionMode != "all" && c.CutDetectionMode != "longest" {
			return fmt.Errorf("cut detection mode must be all or longest, got %q", c.CutDetectionMode)
		}
		if c.CutThreshold < 0 || c.CutThreshold > 1 {
			return fmt.Errorf("cut threshold must be in [0,1], got %v", c.CutThreshold)
		}
		if c.MinSceneLen < 0 {
			return fmt.Errorf("min scene length must be >= 0, got %d", c.MinSceneLen)
		}
	}

	if c.StageEnabled(StageClipping) {
		if c.MinClipLength <= 0 {
			return fmt.Errorf("min clip length must be positive, got %v", c.MinClipLength)
		}
		if c.MinClipLength > c.MaxClipLength {
			return fmt.Errorf("min clip length %v exceeds max clip length %v", c.MinClipLength, c.MaxClipLength)
		}
		if c.MaxLengthStrategy != "all" && c.MaxLengthStrategy != "first" {
			return fmt.Errorf("max length strategy must be all or first, got %q", c.MaxLengthStrategy)
		}
		if c.Precision != "exact" && c.Precision != "keyframe_adjusted" {
			return fmt.Errorf("precision must be exact or keyframe_adjusted, got %q", c.Precision)
		}
		if c.Precision == "keyframe_adjusted" && !c.ExtractKeyframes {
			return fmt.Errorf("keyframe_adjusted precision requires keyframe extraction")
		}
	}

	if c.CutsAreClips && !c.StageEnabled(StageCutDetection) {
		return fmt.Errorf("cuts_are_clips requires the cut detection stage")
	}

	if c.StageEnabled(StageResolution) {
		if c.TargetWidth < 1 || c.TargetHeight < 1 {
			return fmt.Errorf("target size must be positive, got %dx%d", c.TargetWidth, c.TargetHeight)
		}
		if len(c.ResizeMode) == 0 {
			return fmt.Errorf("resize mode must name at least one operation")
		}
		for _, m := range c.ResizeMode {
			if m != "scale" && m != "crop" && m != "pad" {
				return fmt.Errorf("unknown resize operation %q", m)
			}
		}
	}

	if c.StageEnabled(StageFrameRate) && c.TargetFrameRate < 1 {
		return fmt.Errorf("target frame rate must be >= 1, got %d", c.TargetFrameRate)
	}

	if c.StatusPort < 0 || c.StatusPort > 65535 {
		return fmt.Errorf("status port must be in [0,65535], got %d", c.StatusPort)
	}

	return nil
}

// StageEnabled reports whether the named stage is part of the chain.
func (c *Config) StageEnabled(name string) bool {
	for _, s := range c.Stages {
		if s == name {
			return true
		}
	}
	return false
}

// MaxShards returns the largest shard count the configured digit width
// can represent.
func (c *Config) MaxShards() int {
	n := 1
	for i := 0; i < c.OOMShardCount; i++ {
		n *= 10
	}
	return n
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)
