package subsample

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/vid2set/vid2set/internal/dataset"
	"github.com/vid2set/vid2set/internal/ffmpeg"
)

// ErrUnsupportedRate is returned when the source frame rate is below
// the target and interpolation is not enabled: frames cannot be
// synthesized by dropping or duplicating alone.
var ErrUnsupportedRate = errors.New("source frame rate below target")

// FrameRateNormalizer drops or duplicates frames to hit the target
// rate. Audio passes through untouched, so sync shifts stay within the
// container's frame-duration tolerance.
type FrameRateNormalizer struct {
	Tool        ffmpeg.Tool
	WorkDir     string
	Rate        int
	Interpolate bool
}

func (f *FrameRateNormalizer) Name() string { return "frame_rate" }

func (f *FrameRateNormalizer) Transform(ctx context.Context, a *Artifact) ([]*Artifact, error) {
	probe, err := f.Tool.Probe(ctx, a.Path)
	if err != nil {
		return nil, err
	}
	if probe.Video == nil {
		return nil, fmt.Errorf("media has no video stream")
	}

	src := probe.Video.FrameRate
	if src > 0 && src < float64(f.Rate) && !f.Interpolate {
		return nil, fmt.Errorf("%w: source %.3f fps, target %d fps", ErrUnsupportedRate, src, f.Rate)
	}
	if src == float64(f.Rate) {
		return []*Artifact{a}, nil
	}

	graph := fmt.Sprintf("fps=%d", f.Rate)
	if f.Interpolate && src < float64(f.Rate) {
		graph = fmt.Sprintf("minterpolate=fps=%d", f.Rate)
	}

	path := filepath.Join(f.WorkDir, fmt.Sprintf("%s-%s.%s", a.Source.ID, dataset.NewID()[:8], a.Ext))
	if err := f.Tool.Transcode(ctx, a.Path, path, graph); err != nil {
		return nil, err
	}

	out := a.clone()
	out.Path = path
	out.SetMeta("fps", f.Rate)
	return []*Artifact{out}, nil
}

var _ Stage = (*FrameRateNormalizer)(nil)
