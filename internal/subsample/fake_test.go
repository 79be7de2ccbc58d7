package subsample

import (
	"context"
	"fmt"
	"os"

	"github.com/vid2set/vid2set/internal/ffmpeg"
)

// fakeTool is an in-memory Tool for chain tests. It serves one probe
// result for every path and records the operations it performed.
type fakeTool struct {
	probe     ffmpeg.ProbeResult
	cuts      []float64
	keyframes []float64

	clipCalls      []string
	transcodeCalls []string
}

func (f *fakeTool) Probe(_ context.Context, path string) (*ffmpeg.ProbeResult, error) {
	p := f.probe
	return &p, nil
}

func (f *fakeTool) Keyframes(_ context.Context, path string) ([]float64, error) {
	return f.keyframes, nil
}

func (f *fakeTool) DetectSceneChanges(_ context.Context, path string, threshold float64, rate int) ([]float64, error) {
	return f.cuts, nil
}

func (f *fakeTool) ExtractClip(_ context.Context, in, out string, start, end float64, reencode bool) error {
	f.clipCalls = append(f.clipCalls, fmt.Sprintf("%s %.3f-%.3f reencode=%v", in, start, end, reencode))
	return os.WriteFile(out, []byte("clip"), 0o644)
}

func (f *fakeTool) Transcode(_ context.Context, in, out, filtergraph string) error {
	f.transcodeCalls = append(f.transcodeCalls, filtergraph)
	return os.WriteFile(out, []byte("transcoded"), 0o644)
}

func (f *fakeTool) ExtractAudio(_ context.Context, in, out string) error {
	return os.WriteFile(out, []byte("audio"), 0o644)
}

var _ ffmpeg.Tool = (*fakeTool)(nil)
