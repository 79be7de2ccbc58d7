package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vid2set/vid2set/internal/credentials"
	"github.com/vid2set/vid2set/internal/dataset"
)

// DirectFetcher downloads plain file links over HTTP. Local paths are
// read from disk, which keeps small fixture manifests usable.
type DirectFetcher struct {
	client  *http.Client
	tmpDir  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewDirectFetcher builds a direct fetcher around an injected HTTP
// client. A nil client falls back to http.DefaultClient.
func NewDirectFetcher(client *http.Client, tmpDir string, timeout time.Duration, logger *slog.Logger) *DirectFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DirectFetcher{client: client, tmpDir: tmpDir, timeout: timeout, logger: logger}
}

func (f *DirectFetcher) Fetch(ctx context.Context, ref dataset.Reference, _ *credentials.Slot) (*dataset.RawMedia, error) {
	ext, _, ok := SniffExtension(ref.URL)
	if !ok {
		return nil, permanentErr(ref.URL, errors.New("not a direct media link"))
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	path := filepath.Join(f.tmpDir, dataset.NewID()+"."+ext)

	var size int64
	var err error
	if _, statErr := os.Stat(ref.URL); statErr == nil {
		size, err = copyLocal(ref.URL, path)
	} else {
		size, err = f.download(ctx, ref.URL, path)
	}
	if err != nil {
		os.Remove(path)
		return nil, err
	}

	f.logger.Debug("direct fetch complete",
		"reference_id", ref.ID,
		"size", humanize.Bytes(uint64(size)),
	)

	return &dataset.RawMedia{
		Reference: ref,
		Path:      path,
		Ext:       ext,
		Size:      size,
	}, nil
}

func (f *DirectFetcher) download(ctx context.Context, url, path string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, permanentErr(url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		// Timeouts and connection resets are worth a retry elsewhere.
		return 0, transientErr(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, classifyStatus(url, resp.StatusCode)
	}

	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer out.Close()

	n, err := io.Copy(out, resp.Body)
	if err != nil {
		return 0, transientErr(url, fmt.Errorf("read body: %w", err))
	}
	return n, nil
}

func classifyStatus(url string, status int) *Error {
	err := fmt.Errorf("unexpected status %d", status)
	switch {
	case status == http.StatusTooManyRequests:
		return transientErr(url, err)
	case status >= 500:
		return transientErr(url, err)
	default:
		return permanentErr(url, err)
	}
}

func copyLocal(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, permanentErr(src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer out.Close()

	return io.Copy(out, in)
}
