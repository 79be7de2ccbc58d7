package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/vid2set/vid2set/internal/credentials"
	"github.com/vid2set/vid2set/internal/dataset"
	"github.com/vid2set/vid2set/internal/subtitles"
)

const maxPortalStderr = 8 * 1024

// clipSpanRe matches references naming a sub-span of a portal video:
// an 11-character video id followed by zero-padded start/end seconds.
var clipSpanRe = regexp.MustCompile(`^([\w-]{11})_(\d{6})_(\d{6})$`)

// PortalConfig parametrizes the portal fetcher.
type PortalConfig struct {
	BinaryPath     string // yt-dlp binary; empty = look up on PATH
	TmpDir         string
	Timeout        time.Duration
	Policy         RenditionPolicy
	WriteSubtitles bool
	SubtitleLangs  []string
	GetInfo        bool
	Logger         *slog.Logger
}

// PortalFetcher retrieves media from streaming portals through the
// yt-dlp subprocess, selecting renditions per the configured policy and
// authenticating with the credential slot's cookie file.
type PortalFetcher struct {
	cfg PortalConfig
	bin string
}

// NewPortalFetcher resolves the portal binary and returns the fetcher.
func NewPortalFetcher(cfg PortalConfig) (*PortalFetcher, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	name := cfg.BinaryPath
	if name == "" {
		name = "yt-dlp"
	}
	bin, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("cannot locate %s: %w", name, err)
	}
	return &PortalFetcher{cfg: cfg, bin: bin}, nil
}

func (f *PortalFetcher) Fetch(ctx context.Context, ref dataset.Reference, cred *credentials.Slot) (*dataset.RawMedia, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	url := ref.URL
	var span *dataset.Span
	if m := clipSpanRe.FindStringSubmatch(url); m != nil {
		start, _ := strconv.Atoi(m[2])
		end, _ := strconv.Atoi(m[3])
		span = &dataset.Span{Start: float64(start), End: float64(end)}
		url = "https://www.youtube.com/watch?v=" + m[1]
	}

	outPath := filepath.Join(f.cfg.TmpDir, dataset.NewID()+".mp4")

	args := []string{
		"--quiet", "--no-warnings",
		"--format", f.cfg.Policy.VideoFormat(),
		"--output", outPath,
		"--no-playlist",
	}
	if cred != nil {
		args = append(args, "--cookies", cred.File)
	}
	if span != nil {
		args = append(args,
			"--download-sections", fmt.Sprintf("*%d-%d", int(span.Start), int(span.End)),
			"--force-keyframes-at-cuts",
		)
	}
	if f.cfg.WriteSubtitles {
		langs := f.cfg.SubtitleLangs
		if len(langs) == 0 {
			langs = []string{"en"}
		}
		args = append(args,
			"--write-subs", "--write-auto-subs",
			"--sub-langs", strings.Join(langs, ","),
			"--sub-format", "vtt",
		)
	}
	if f.cfg.GetInfo {
		args = append(args, "--write-info-json")
	}
	args = append(args, url)

	cmd := exec.CommandContext(ctx, f.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &tailWriter{buf: &stderr, limit: maxPortalStderr}
	cmd.Stdout = io.Discard

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		os.Remove(outPath)
		if ctx.Err() != nil {
			return nil, transientErr(ref.URL, fmt.Errorf("portal fetch timed out: %w", ctx.Err()))
		}
		return nil, classifyPortal(ref.URL, stderr.String(), err)
	}
	if _, statErr := os.Stat(outPath); statErr != nil {
		return nil, classifyPortal(ref.URL, stderr.String(), errors.New("portal produced no output file"))
	}

	media := &dataset.RawMedia{
		Reference: ref,
		Path:      outPath,
		Ext:       "mp4",
		ClipSpan:  span,
	}
	if fi, statErr := os.Stat(outPath); statErr == nil {
		media.Size = fi.Size()
	}

	f.attachSidecars(media, outPath)

	f.cfg.Logger.Debug("portal fetch complete",
		"reference_id", ref.ID,
		"duration_ms", time.Since(start).Milliseconds(),
		"size", media.Size,
		"subtitles", len(media.Subtitles),
	)

	return media, nil
}

// attachSidecars folds subtitle and info sidecar files produced next to
// the output into the media record, removing them from disk.
func (f *PortalFetcher) attachSidecars(media *dataset.RawMedia, outPath string) {
	base := strings.TrimSuffix(outPath, ".mp4")

	if f.cfg.WriteSubtitles {
		for _, lang := range f.cfg.SubtitleLangs {
			vttPath := base + "." + lang + ".vtt"
			vf, err := os.Open(vttPath)
			if err != nil {
				continue
			}
			cues, perr := subtitles.Parse(vf)
			vf.Close()
			os.Remove(vttPath)
			if perr != nil {
				f.cfg.Logger.Warn("subtitle parse failed", "lang", lang, "error", perr)
				continue
			}
			media.Subtitles = cues
			break // first present language wins
		}
	}

	if f.cfg.GetInfo {
		infoPath := base + ".info.json"
		data, err := os.ReadFile(infoPath)
		os.Remove(infoPath)
		if err == nil {
			var info map[string]any
			if json.Unmarshal(data, &info) == nil {
				// The full dump carries per-rendition noise useless
				// downstream; keep the descriptive fields.
				for _, k := range []string{"formats", "requested_formats", "thumbnails", "automatic_captions", "subtitles"} {
					delete(info, k)
				}
				media.SourceInfo = info
				media.Width = intField(info, "width")
				media.Height = intField(info, "height")
				media.Duration = floatField(info, "duration")
			}
		}
	}
}

// permanentMarkers identify failures no credential rotation can fix.
var permanentMarkers = []string{
	"Video unavailable",
	"Private video",
	"This video has been removed",
	"account associated with this video has been terminated",
	"is not a valid URL",
	"Unsupported URL",
	"This video is not available",
	"Requested format is not available",
}

func classifyPortal(url, stderrTail string, err error) *Error {
	for _, marker := range permanentMarkers {
		if strings.Contains(stderrTail, marker) {
			return permanentErr(url, fmt.Errorf("%s: %w", strings.TrimSpace(stderrTail), err))
		}
	}
	// Rate limits, bot checks and network flakes all recover with a
	// different credential or a later attempt.
	if stderrTail != "" {
		err = fmt.Errorf("%s: %w", strings.TrimSpace(stderrTail), err)
	}
	return transientErr(url, err)
}

func intField(m map[string]any, key string) int {
	if v, ok := m[key].(float64); ok {
		return int(v)
	}
	return 0
}

func floatField(m map[string]any, key string) float64 {
	if v, ok := m[key].(float64); ok {
		return v
	}
	return 0
}

// tailWriter keeps only the last limit bytes written.
type tailWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *tailWriter) Write(p []byte) (int, error) {
	n := len(p)
	w.buf.Write(p)
	if w.buf.Len() > w.limit {
		b := w.buf.Bytes()
		w.buf.Reset()
		w.buf.Write(b[len(b)-w.limit:])
	}
	return n, nil
}
