package subsample

import (
	"context"

	"github.com/vid2set/vid2set/internal/ffmpeg"
)

// Prober attaches container, codec and stream metadata to the artifact,
// plus the keyframe timestamp list when extraction is enabled.
type Prober struct {
	Tool             ffmpeg.Tool
	ExtractKeyframes bool
}

func (p *Prober) Name() string { return "probe" }

func (p *Prober) Transform(ctx context.Context, a *Artifact) ([]*Artifact, error) {
	probe, err := p.Tool.Probe(ctx, a.Path)
	if err != nil {
		return nil, err
	}

	out := a.clone()
	for k, v := range probe.Metadata() {
		out.SetMeta(k, v)
	}

	if p.ExtractKeyframes {
		kf, err := p.Tool.Keyframes(ctx, a.Path)
		if err != nil {
			return nil, err
		}
		out.Keyframes = kf
		out.SetMeta("keyframes", kf)
	}

	return []*Artifact{out}, nil
}

var _ Stage = (*Prober)(nil)
