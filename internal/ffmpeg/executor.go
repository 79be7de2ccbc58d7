package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

const maxStderrBytes = 8 * 1024 // tail of stderr kept for diagnostics

// Executor is the production Tool implementation shelling out to
// ffmpeg and ffprobe.
type Executor struct {
	ffmpeg  string
	ffprobe string
	logger  *slog.Logger
}

// NewExecutor resolves the tool binaries and returns an Executor.
// Empty paths are looked up on PATH.
func NewExecutor(ffmpegPath, ffprobePath string, logger *slog.Logger) (*Executor, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ffm, err := resolveBinary(ffmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	ffp, err := resolveBinary(ffprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}

	logger.Info("media tool initialised", "ffmpeg", ffm, "ffprobe", ffp)
	return &Executor{ffmpeg: ffm, ffprobe: ffp, logger: logger}, nil
}

func resolveBinary(preferred, fallback string) (string, error) {
	name := preferred
	if name == "" {
		name = fallback
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("cannot locate %s: %w", name, err)
	}
	return p, nil
}

// runResult holds the outcome of one subprocess invocation.
type runResult struct {
	stdout     []byte
	stderrTail string
	err        error
}

// run executes bin with args, capturing stdout fully and keeping only
// the tail of stderr.
func (e *Executor) run(ctx context.Context, bin string, args ...string) runResult {
	start := time.Now()

	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &limitedWriter{w: &stderr, limit: maxStderrBytes}

	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		e.logger.Debug("media command failed",
			"bin", bin,
			"args", args,
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
	}

	return runResult{stdout: stdout.Bytes(), stderrTail: stderr.String(), err: err}
}

func (r runResult) fail(op string) error {
	if r.err == nil {
		return nil
	}
	if r.stderrTail != "" {
		return fmt.Errorf("%s: %w: %s", op, r.err, r.stderrTail)
	}
	return fmt.Errorf("%s: %w", op, r.err)
}

// limitedWriter keeps only the last limit bytes written.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
