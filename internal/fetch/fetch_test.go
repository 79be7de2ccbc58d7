package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vid2set/vid2set/internal/dataset"
)

func TestSniffExtension(t *testing.T) {
	tests := []struct {
		url      string
		ext      string
		modality string
		ok       bool
	}{
		{"https://example.com/v.mp4", "mp4", "video", true},
		{"https://example.com/v.webm", "webm", "video", true},
		{"https://example.com/a.m4a", "m4a", "audio", true},
		{"https://www.youtube.com/watch?v=abc", "", "", false},
		{"dQw4w9WgXcQ_000010_000020", "", "", false},
	}
	for _, tt := range tests {
		ext, modality, ok := SniffExtension(tt.url)
		if ext != tt.ext || modality != tt.modality || ok != tt.ok {
			t.Errorf("SniffExtension(%q) = %q,%q,%v", tt.url, ext, modality, ok)
		}
	}
}

func TestRenditionPolicy_Formats(t *testing.T) {
	p := RenditionPolicy{VideoHeight: 360, AudioRate: 44100}

	if got := p.VideoFormat(); got != "wv*[height>=360][ext=mp4]/w[height>=360][ext=mp4]/bv/b[ext=mp4]" {
		t.Errorf("VideoFormat() = %q", got)
	}
	if got := p.AudioFormat(); got != "wa[asr>=44100][ext=m4a]/ba[ext=m4a]" {
		t.Errorf("AudioFormat() = %q", got)
	}
	if got := (RenditionPolicy{}).AudioFormat(); got != "ba[ext=m4a]" {
		t.Errorf("AudioFormat() with zero rate = %q", got)
	}
}

func TestClipSpanParsing(t *testing.T) {
	m := clipSpanRe.FindStringSubmatch("dQw4w9WgXcQ_000010_000025")
	if m == nil {
		t.Fatal("clip-span reference did not match")
	}
	if m[1] != "dQw4w9WgXcQ" || m[2] != "000010" || m[3] != "000025" {
		t.Errorf("groups = %v", m[1:])
	}
	if clipSpanRe.MatchString("https://example.com/v.mp4") {
		t.Error("plain URL should not match the clip-span form")
	}
}

func TestDirectFetcher_Success(t *testing.T) {
	payload := []byte("not really a video")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	f := NewDirectFetcher(srv.Client(), t.TempDir(), 5*time.Second, nil)
	ref := dataset.Reference{ID: "r1", URL: srv.URL + "/clip.mp4"}

	media, err := f.Fetch(context.Background(), ref, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	defer os.Remove(media.Path)

	if media.Ext != "mp4" {
		t.Errorf("Ext = %s", media.Ext)
	}
	if media.Size != int64(len(payload)) {
		t.Errorf("Size = %d, want %d", media.Size, len(payload))
	}
	data, err := os.ReadFile(media.Path)
	if err != nil || string(data) != string(payload) {
		t.Errorf("media file content mismatch: %v", err)
	}
}

func TestDirectFetcher_PermanentOn404(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := NewDirectFetcher(srv.Client(), t.TempDir(), 5*time.Second, nil)
	_, err := f.Fetch(context.Background(), dataset.Reference{URL: srv.URL + "/gone.mp4"}, nil)
	if err == nil {
		t.Fatal("Fetch() should fail on 404")
	}
	if dataset.Classify(err) != dataset.KindPermanent {
		t.Errorf("Classify() = %v, want permanent", dataset.Classify(err))
	}
}

func TestDirectFetcher_TransientOn503(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewDirectFetcher(srv.Client(), t.TempDir(), 5*time.Second, nil)
	_, err := f.Fetch(context.Background(), dataset.Reference{URL: srv.URL + "/flaky.mp4"}, nil)
	if !dataset.IsTransient(err) {
		t.Errorf("error %v should be transient", err)
	}
}

func TestDirectFetcher_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer srv.Close()

	f := NewDirectFetcher(srv.Client(), t.TempDir(), 50*time.Millisecond, nil)
	_, err := f.Fetch(context.Background(), dataset.Reference{URL: srv.URL + "/slow.mp4"}, nil)
	if err == nil {
		t.Fatal("Fetch() should time out")
	}
	if !dataset.IsTransient(err) {
		t.Errorf("timeout error %v should be transient", err)
	}
}

func TestDirectFetcher_LocalFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "local.mp4")
	if err := os.WriteFile(src, []byte("local bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := NewDirectFetcher(nil, dir, time.Second, nil)
	media, err := f.Fetch(context.Background(), dataset.Reference{URL: src}, nil)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if media.Size != int64(len("local bytes")) {
		t.Errorf("Size = %d", media.Size)
	}
}

func TestClassifyPortal(t *testing.T) {
	perm := classifyPortal("u", "ERROR: Video unavailable", errors.New("exit status 1"))
	if perm.Kind() != dataset.KindPermanent {
		t.Errorf("removed video should be permanent")
	}

	trans := classifyPortal("u", "HTTP Error 429: Too Many Requests", errors.New("exit status 1"))
	if trans.Kind() != dataset.KindTransient {
		t.Errorf("rate limit should be transient")
	}
}
