package subsample

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vid2set/vid2set/internal/config"
	"github.com/vid2set/vid2set/internal/ffmpeg"
)

// Chain is the configured, ordered stage sequence. Stage presence is
// driven by configuration; the order is canonical and fixed.
type Chain struct {
	stages []Stage
	logger *slog.Logger
}

// NewChain assembles the chain for the run. When keyframe-adjusted
// clipping is enabled, a keyframe extraction pass runs ahead of the
// clipper so clip boundaries receive the keyframe list as plain input
// data rather than querying the prober mid-stage.
func NewChain(cfg *config.Config, tool ffmpeg.Tool, workDir string, logger *slog.Logger) *Chain {
	if logger == nil {
		logger = slog.Default()
	}

	var stages []Stage

	if cfg.StageEnabled(config.StageCutDetection) {
		stages = append(stages, &CutDetector{
			Tool:        tool,
			Mode:        cfg.CutDetectionMode,
			Threshold:   cfg.CutThreshold,
			MinSceneLen: cfg.MinSceneLen,
			FrameRate:   cfg.CutFrameRate,
		})
	}

	if cfg.StageEnabled(config.StageClipping) {
		if cfg.Precision == "keyframe_adjusted" {
			stages = append(stages, &KeyframeLoader{Tool: tool})
		}
		stages = append(stages, &Clipper{
			Tool:         tool,
			WorkDir:      workDir,
			CutsAreClips: cfg.CutsAreClips,
			MinLength:    cfg.MinClipLength,
			MaxLength:    cfg.MaxClipLength,
			Strategy:     cfg.MaxLengthStrategy,
			Precision:    cfg.Precision,
		})
	}

	if cfg.StageEnabled(config.StageResolution) {
		stages = append(stages, &ResolutionNormalizer{
			Tool:    tool,
			WorkDir: workDir,
			Width:   cfg.TargetWidth,
			Height:  cfg.TargetHeight,
			Modes:   cfg.ResizeMode,
		})
	}

	if cfg.StageEnabled(config.StageFrameRate) {
		stages = append(stages, &FrameRateNormalizer{
			Tool:        tool,
			WorkDir:     workDir,
			Rate:        cfg.TargetFrameRate,
			Interpolate: cfg.FrameInterpolation,
		})
	}

	if cfg.StageEnabled(config.StageProbe) {
		stages = append(stages, &Prober{
			Tool:             tool,
			ExtractKeyframes: cfg.ExtractKeyframes,
		})
	}

	return &Chain{stages: stages, logger: logger}
}

// Stages returns the names of the assembled stages in order.
func (c *Chain) Stages() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name()
	}
	return names
}

// Run pushes the artifact through every stage. A stage receiving N
// inputs produces the concatenation of its per-input outputs; an error
// on any input aborts the whole reference, per-reference isolation
// being the caller's job.
func (c *Chain) Run(ctx context.Context, root *Artifact) ([]*Artifact, error) {
	current := []*Artifact{root}

	for _, stage := range c.stages {
		var next []*Artifact
		for _, a := range current {
			out, err := stage.Transform(ctx, a)
			if err != nil {
				return nil, fmt.Errorf("stage %s: %w", stage.Name(), err)
			}
			next = append(next, out...)
		}
		c.logger.Debug("stage complete",
			"stage", stage.Name(),
			"in", len(current),
			"out", len(next),
		)
		current = next
		if len(current) == 0 {
			break
		}
	}

	return current, nil
}
