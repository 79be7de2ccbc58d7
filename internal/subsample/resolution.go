package subsample

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/vid2set/vid2set/internal/dataset"
	"github.com/vid2set/vid2set/internal/ffmpeg"
)

// ResolutionNormalizer rescales media to an exact target size through
// an ordered list of operations: scale (uniform), crop (center-crop
// overflow), pad (letterbox deficit). The full scale,crop,pad sequence
// guarantees exact output dimensions for any source aspect ratio.
type ResolutionNormalizer struct {
	Tool    ffmpeg.Tool
	WorkDir string
	Width   int
	Height  int
	Modes   []string
}

func (r *ResolutionNormalizer) Name() string { return "resolution" }

func (r *ResolutionNormalizer) Transform(ctx context.Context, a *Artifact) ([]*Artifact, error) {
	probe, err := r.Tool.Probe(ctx, a.Path)
	if err != nil {
		return nil, err
	}
	if probe.Video == nil {
		return nil, fmt.Errorf("media has no video stream")
	}

	graph, outW, outH := PlanResize(probe.Video.Width, probe.Video.Height, r.Width, r.Height, r.Modes)
	if graph == "" {
		// Already at target size.
		return []*Artifact{a}, nil
	}

	path := filepath.Join(r.WorkDir, fmt.Sprintf("%s-%s.%s", a.Source.ID, dataset.NewID()[:8], a.Ext))
	if err := r.Tool.Transcode(ctx, a.Path, path, graph); err != nil {
		return nil, err
	}

	out := a.clone()
	out.Path = path
	out.SetMeta("width", outW)
	out.SetMeta("height", outH)
	out.SetMeta("resize_mode", strings.Join(r.Modes, ","))
	return []*Artifact{out}, nil
}

// PlanResize computes the ffmpeg filter graph and resulting dimensions
// for the configured operation order. Operations apply in sequence
// until the output matches the target on the constrained dimension:
//
//   - scale: uniform scale; when a crop follows, scale covers the
//     target (one dimension exact, the other >= target), otherwise it
//     fits inside it (one exact, the other <= target).
//   - crop: center-crop any excess over the target.
//   - pad: letterbox any remaining deficit.
//
// An empty graph means the source already matches the target.
func PlanResize(srcW, srcH, dstW, dstH int, modes []string) (graph string, outW, outH int) {
	outW, outH = srcW, srcH
	if srcW == dstW && srcH == dstH {
		return "", outW, outH
	}

	cropEnabled := false
	for _, m := range modes {
		if m == "crop" {
			cropEnabled = true
		}
	}

	var ops []string
	for _, m := range modes {
		switch m {
		case "scale":
			var ratio float64
			if cropEnabled {
				ratio = math.Max(float64(dstW)/float64(outW), float64(dstH)/float64(outH))
			} else {
				ratio = math.Min(float64(dstW)/float64(outW), float64(dstH)/float64(outH))
			}
			outW = roundEven(float64(outW) * ratio)
			outH = roundEven(float64(outH) * ratio)
			ops = append(ops, fmt.Sprintf("scale=%d:%d", outW, outH))
		case "crop":
			w, h := min(outW, dstW), min(outH, dstH)
			if w != outW || h != outH {
				ops = append(ops, fmt.Sprintf("crop=%d:%d", w, h))
				outW, outH = w, h
			}
		case "pad":
			w, h := max(outW, dstW), max(outH, dstH)
			if w != outW || h != outH {
				ops = append(ops, fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", w, h))
				outW, outH = w, h
			}
		}
	}

	if len(ops) == 0 {
		return "", srcW, srcH
	}
	ops = append(ops, "setsar=1")
	return strings.Join(ops, ","), outW, outH
}

// roundEven rounds to the nearest even integer >= 2; codecs with 4:2:0
// chroma need even dimensions.
func roundEven(v float64) int {
	n := int(math.Round(v/2)) * 2
	if n < 2 {
		return 2
	}
	return n
}

var _ Stage = (*ResolutionNormalizer)(nil)
