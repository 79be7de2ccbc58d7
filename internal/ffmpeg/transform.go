package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// DetectSceneChanges scores frame differences with ffmpeg's scene
// filter and returns the timestamps whose score exceeds threshold.
// The filter prints per-frame metadata to a temp file so long videos
// with many cuts are not limited by the stderr tail.
func (e *Executor) DetectSceneChanges(ctx context.Context, path string, threshold float64, rate int) ([]float64, error) {
	scoreFile := filepath.Join(os.TempDir(), "scene-"+uuid.NewString()+".txt")
	defer os.Remove(scoreFile)

	var graph strings.Builder
	if rate > 0 {
		fmt.Fprintf(&graph, "fps=%d,", rate)
	}
	fmt.Fprintf(&graph, "select='gt(scene,%s)',metadata=print:file=%s",
		strconv.FormatFloat(threshold, 'f', -1, 64), scoreFile)

	res := e.run(ctx, e.ffmpeg,
		"-hide_banner", "-nostdin", "-nostats",
		"-i", path,
		"-vf", graph.String(),
		"-an", "-sn",
		"-f", "null", "-",
	)
	if err := res.fail("scene detection"); err != nil {
		return nil, err
	}

	return parseSceneScores(scoreFile)
}

// parseSceneScores reads the metadata filter's print output. Selected
// frames appear as "frame:N pts:P pts_time:T" header lines.
func parseSceneScores(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // no frame exceeded the threshold
		}
		return nil, fmt.Errorf("read scene scores: %w", err)
	}
	defer f.Close()

	var cuts []float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		idx := strings.Index(line, "pts_time:")
		if idx < 0 {
			continue
		}
		v := line[idx+len("pts_time:"):]
		if i := strings.IndexByte(v, ' '); i >= 0 {
			v = v[:i]
		}
		ts, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			continue
		}
		cuts = append(cuts, ts)
	}
	return cuts, sc.Err()
}

// ExtractClip cuts [start, end) of in into out. Copy mode seeks on the
// input and copies streams, which is fast but only exact when start sits
// on a keyframe; reencode mode decodes for frame-accurate boundaries.
func (e *Executor) ExtractClip(ctx context.Context, in, out string, start, end float64, reencode bool) error {
	dur := end - start
	if dur <= 0 {
		return fmt.Errorf("extract clip: non-positive duration %v", dur)
	}

	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-loglevel", "error",
		"-ss", formatSeconds(start),
		"-i", in,
		"-t", formatSeconds(dur),
	}
	if reencode {
		args = append(args,
			"-c:v", "libx264",
			"-preset", "veryfast",
			"-c:a", "aac",
		)
	} else {
		args = append(args,
			"-c", "copy",
			"-avoid_negative_ts", "make_zero",
		)
	}
	args = append(args, out)

	return e.run(ctx, e.ffmpeg, args...).fail("extract clip")
}

// Transcode re-encodes in to out with an optional video filter graph.
func (e *Executor) Transcode(ctx context.Context, in, out, filtergraph string) error {
	args := []string{
		"-hide_banner", "-nostdin", "-y",
		"-loglevel", "error",
		"-i", in,
	}
	if filtergraph != "" {
		args = append(args, "-vf", filtergraph)
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-c:a", "aac",
		out,
	)

	return e.run(ctx, e.ffmpeg, args...).fail("transcode")
}

// ExtractAudio writes the first audio stream of in to out; the output
// format follows out's extension. Fails when in has no audio stream.
func (e *Executor) ExtractAudio(ctx context.Context, in, out string) error {
	return e.run(ctx, e.ffmpeg,
		"-hide_banner", "-nostdin", "-y",
		"-loglevel", "error",
		"-i", in,
		"-map", "0:a:0",
		"-vn",
		out,
	).fail("extract audio")
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

var _ Tool = (*Executor)(nil)
