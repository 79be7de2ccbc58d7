package subsample

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/vid2set/vid2set/internal/dataset"
	"github.com/vid2set/vid2set/internal/ffmpeg"
)

// KeyframeLoader fills Artifact.Keyframes ahead of the clipper so
// keyframe-adjusted boundaries are plain input data to the clip stage.
type KeyframeLoader struct {
	Tool ffmpeg.Tool
}

func (k *KeyframeLoader) Name() string { return "keyframes" }

func (k *KeyframeLoader) Transform(ctx context.Context, a *Artifact) ([]*Artifact, error) {
	kf, err := k.Tool.Keyframes(ctx, a.Path)
	if err != nil {
		return nil, err
	}
	out := a.clone()
	out.Keyframes = kf
	return []*Artifact{out}, nil
}

// Clipper cuts media into length-constrained clips. Candidate segments
// come from the cut list when cut-boundaries mode is active, otherwise
// the whole media is the single candidate.
type Clipper struct {
	Tool         ffmpeg.Tool
	WorkDir      string
	CutsAreClips bool
	MinLength    float64
	MaxLength    float64
	Strategy     string // "all" or "first"
	Precision    string // "exact" or "keyframe_adjusted"
}

func (c *Clipper) Name() string { return "clipping" }

func (c *Clipper) Transform(ctx context.Context, a *Artifact) ([]*Artifact, error) {
	var candidates []dataset.Span
	switch {
	case c.CutsAreClips && len(a.CutList) > 0:
		candidates = a.CutList
	case a.Span != nil:
		candidates = []dataset.Span{*a.Span}
	default:
		probe, err := c.Tool.Probe(ctx, a.Path)
		if err != nil {
			return nil, err
		}
		candidates = []dataset.Span{{Start: 0, End: probe.Format.Duration}}
	}

	clips := PlanClips(candidates, c.MinLength, c.MaxLength, c.Strategy, c.Precision, a.Keyframes)

	out := make([]*Artifact, 0, len(clips))
	for i, span := range clips {
		path := filepath.Join(c.WorkDir, fmt.Sprintf("%s-clip%04d.%s", a.Source.ID, i, a.Ext))
		reencode := c.Precision == "exact"
		if err := c.Tool.ExtractClip(ctx, a.Path, path, span.Start, span.End, reencode); err != nil {
			return nil, err
		}

		clip := a.clone()
		clip.Path = path
		clip.ClipIndex = i
		span := span
		clip.Span = &span
		clip.SetMeta("clip_start", span.Start)
		clip.SetMeta("clip_end", span.End)
		clip.SetMeta("clip_precision", c.Precision)
		out = append(out, clip)
	}
	return out, nil
}

// PlanClips derives final clip spans from candidate segments. Segments
// shorter than minLen are dropped; segments longer than maxLen split
// per strategy: "all" emits every maximal sub-segment of length maxLen
// plus a trailing remainder (kept only when it reaches minLen), any
// other strategy emits just the first sub-segment. With precision
// "keyframe_adjusted", each boundary then snaps to the nearest keyframe
// at or before it, so every clip is independently decodable from its
// start; spans snapped to nothing are discarded.
func PlanClips(candidates []dataset.Span, minLen, maxLen float64, strategy, precision string, keyframes []float64) []dataset.Span {
	var exact []dataset.Span
	for _, cand := range candidates {
		dur := cand.Duration()
		if dur < minLen {
			continue
		}
		if dur <= maxLen {
			exact = append(exact, cand)
			continue
		}

		if strategy != "all" {
			exact = append(exact, dataset.Span{Start: cand.Start, End: cand.Start + maxLen})
			continue
		}
		for start := cand.Start; start < cand.End; start += maxLen {
			end := start + maxLen
			if end > cand.End {
				end = cand.End
			}
			if end-start < minLen {
				break // trailing remainder below minimum is dropped
			}
			exact = append(exact, dataset.Span{Start: start, End: end})
		}
	}

	if precision != "keyframe_adjusted" || len(keyframes) == 0 {
		return exact
	}

	out := make([]dataset.Span, 0, len(exact))
	for _, s := range exact {
		start, ok := snapDown(keyframes, s.Start)
		if !ok {
			continue // no keyframe at or before the start
		}
		end, ok := snapDown(keyframes, s.End)
		if !ok || end <= start {
			end = s.End // keep the exact end rather than emit an empty clip
		}
		out = append(out, dataset.Span{Start: start, End: end})
	}
	return out
}

// snapDown returns the largest keyframe timestamp <= t. keyframes must
// be sorted ascending.
func snapDown(keyframes []float64, t float64) (float64, bool) {
	i := sort.SearchFloat64s(keyframes, t)
	if i < len(keyframes) && keyframes[i] == t {
		return t, true
	}
	if i == 0 {
		return 0, false
	}
	return keyframes[i-1], true
}

var _ Stage = (*Clipper)(nil)
var _ Stage = (*KeyframeLoader)(nil)
