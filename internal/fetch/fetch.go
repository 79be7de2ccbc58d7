// Package fetch retrieves one video's raw media and source metadata.
// Direct file links go through an HTTP client; everything else goes
// through the portal fetcher (yt-dlp subprocess). Failures carry a
// transient/permanent classification so the distributor can decide
// whether rotating credentials and retrying is worth it.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vid2set/vid2set/internal/credentials"
	"github.com/vid2set/vid2set/internal/dataset"
)

// Error is a classified fetch failure.
type Error struct {
	URL  string
	kind dataset.ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Kind reports the retry classification.
func (e *Error) Kind() dataset.ErrorKind { return e.kind }

func transientErr(url string, err error) *Error {
	return &Error{URL: url, kind: dataset.KindTransient, Err: err}
}

func permanentErr(url string, err error) *Error {
	return &Error{URL: url, kind: dataset.KindPermanent, Err: err}
}

// Fetcher retrieves the media behind a reference. The credential slot
// may be nil when the pool is empty.
type Fetcher interface {
	Fetch(ctx context.Context, ref dataset.Reference, cred *credentials.Slot) (*dataset.RawMedia, error)
}

// RenditionPolicy restricts which source rendition is downloaded.
// VideoHeight selects the smallest rendition at least that tall;
// AudioRate selects an audio rendition with at least that sample rate.
type RenditionPolicy struct {
	VideoHeight int
	AudioRate   int
}

// VideoFormat builds the portal format selector for video.
func (p RenditionPolicy) VideoFormat() string {
	h := p.VideoHeight
	return fmt.Sprintf(
		"wv*[height>=%d][ext=mp4]/w[height>=%d][ext=mp4]/bv/b[ext=mp4]", h, h)
}

// AudioFormat builds the portal format selector for audio.
func (p RenditionPolicy) AudioFormat() string {
	if p.AudioRate > 0 {
		return fmt.Sprintf("wa[asr>=%d][ext=m4a]/ba[ext=m4a]", p.AudioRate)
	}
	return "ba[ext=m4a]"
}

var videoExtensions = []string{"mp4", "webm", "mov", "avi", "mkv"}
var audioExtensions = []string{"mp3", "wav", "m4a"}

// SniffExtension returns the media extension and modality ("video" or
// "audio") when the URL points at a directly downloadable file, or
// ok=false when the reference must go through the portal fetcher.
func SniffExtension(url string) (ext, modality string, ok bool) {
	for _, e := range videoExtensions {
		if strings.HasSuffix(url, "."+e) {
			return e, "video", true
		}
	}
	for _, e := range audioExtensions {
		if strings.HasSuffix(url, "."+e) {
			return e, "audio", true
		}
	}
	return "", "", false
}

// UnavailableFetcher fails every reference with a permanent error. It
// stands in for the portal fetcher when yt-dlp is not installed.
type UnavailableFetcher struct {
	Reason string
}

func (f UnavailableFetcher) Fetch(_ context.Context, ref dataset.Reference, _ *credentials.Slot) (*dataset.RawMedia, error) {
	return nil, permanentErr(ref.URL, errors.New(f.Reason))
}

// Router sends direct file links to the direct fetcher and all other
// references to the portal fetcher.
type Router struct {
	Direct Fetcher
	Portal Fetcher
}

func (r *Router) Fetch(ctx context.Context, ref dataset.Reference, cred *credentials.Slot) (*dataset.RawMedia, error) {
	if _, _, ok := SniffExtension(ref.URL); ok {
		return r.Direct.Fetch(ctx, ref, cred)
	}
	return r.Portal.Fetch(ctx, ref, cred)
}
