package subsample

import (
	"context"

	"github.com/vid2set/vid2set/internal/dataset"
	"github.com/vid2set/vid2set/internal/ffmpeg"
)

// CutDetector finds scene boundaries by scoring frame differences.
// It attaches a CutList to the artifact and passes it on unchanged;
// whether the cuts also become clip boundaries is the clipper's
// contract, not a property of the list.
type CutDetector struct {
	Tool        ffmpeg.Tool
	Mode        string  // "all" or "longest"
	Threshold   float64 // frame-difference sensitivity, 0..1
	MinSceneLen int     // frames; shorter scenes merge into the previous one
	FrameRate   int     // detection rate, 0 = native
}

func (d *CutDetector) Name() string { return "cut_detection" }

func (d *CutDetector) Transform(ctx context.Context, a *Artifact) ([]*Artifact, error) {
	probe, err := d.Tool.Probe(ctx, a.Path)
	if err != nil {
		return nil, err
	}
	duration := probe.Format.Duration

	cuts, err := d.Tool.DetectSceneChanges(ctx, a.Path, d.Threshold, d.FrameRate)
	if err != nil {
		return nil, err
	}

	rate := float64(d.FrameRate)
	if rate == 0 && probe.Video != nil {
		rate = probe.Video.FrameRate
	}
	minLen := 0.0
	if rate > 0 {
		minLen = float64(d.MinSceneLen) / rate
	}

	scenes := BuildScenes(cuts, duration)
	scenes = MergeShortScenes(scenes, minLen)
	if d.Mode == "longest" {
		scenes = SelectLongest(scenes)
	}

	out := a.clone()
	out.CutList = scenes
	out.SetMeta("cuts", scenes)
	out.SetMeta("cut_detection_mode", d.Mode)
	return []*Artifact{out}, nil
}

// BuildScenes turns cut timestamps into contiguous scene spans covering
// [0, duration). Cuts outside the media or in non-ascending order are
// discarded. The result is deterministic for a given input.
func BuildScenes(cuts []float64, duration float64) []dataset.Span {
	if duration <= 0 {
		return nil
	}

	spans := make([]dataset.Span, 0, len(cuts)+1)
	prev := 0.0
	for _, c := range cuts {
		if c <= prev || c >= duration {
			continue
		}
		spans = append(spans, dataset.Span{Start: prev, End: c})
		prev = c
	}
	spans = append(spans, dataset.Span{Start: prev, End: duration})
	return spans
}

// MergeShortScenes merges every scene shorter than minLen into its
// predecessor; a short leading scene merges forward into the next one.
// A single all-covering span is returned unshortened even if it stays
// below minLen, since there is no neighbor left to absorb it.
func MergeShortScenes(spans []dataset.Span, minLen float64) []dataset.Span {
	if minLen <= 0 || len(spans) < 2 {
		return spans
	}

	out := make([]dataset.Span, 0, len(spans))
	carry := -1.0 // start carried forward from short leading scenes
	for _, s := range spans {
		if carry >= 0 {
			s.Start = carry
			carry = -1
		}
		if s.Duration() < minLen {
			if len(out) > 0 {
				out[len(out)-1].End = s.End
			} else {
				carry = s.Start
			}
			continue
		}
		out = append(out, s)
	}
	if carry >= 0 {
		out = append(out, dataset.Span{Start: carry, End: spans[len(spans)-1].End})
	}
	return out
}

// SelectLongest reduces the scene list to its single longest span,
// the representative-subset mode of cut reporting.
func SelectLongest(spans []dataset.Span) []dataset.Span {
	if len(spans) == 0 {
		return nil
	}
	best := 0
	for i, s := range spans {
		if s.Duration() > spans[best].Duration() {
			best = i
		}
	}
	return []dataset.Span{spans[best]}
}

var _ Stage = (*CutDetector)(nil)
