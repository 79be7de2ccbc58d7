package distribute

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/vid2set/vid2set/internal/config"
	"github.com/vid2set/vid2set/internal/credentials"
	"github.com/vid2set/vid2set/internal/dataset"
	"github.com/vid2set/vid2set/internal/ffmpeg"
	"github.com/vid2set/vid2set/internal/outcomes"
	"github.com/vid2set/vid2set/internal/shard"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type classified struct {
	msg  string
	kind dataset.ErrorKind
}

func (e classified) Error() string           { return e.msg }
func (e classified) Kind() dataset.ErrorKind { return e.kind }

// fakeFetcher writes a small file per fetch and fails according to the
// injected fail func.
type fakeFetcher struct {
	mu       sync.Mutex
	dir      string
	attempts map[string]int
	fail     func(ref dataset.Reference, attempt int) error
}

func newFakeFetcher(t *testing.T) *fakeFetcher {
	t.Helper()
	return &fakeFetcher{dir: t.TempDir(), attempts: map[string]int{}}
}

func (f *fakeFetcher) Fetch(_ context.Context, ref dataset.Reference, _ *credentials.Slot) (*dataset.RawMedia, error) {
	f.mu.Lock()
	f.attempts[ref.ID]++
	n := f.attempts[ref.ID]
	f.mu.Unlock()

	if f.fail != nil {
		if err := f.fail(ref, n); err != nil {
			return nil, err
		}
	}

	path := filepath.Join(f.dir, ref.ID+"-"+strconv.Itoa(n)+".mp4")
	data := []byte("video:" + ref.ID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, err
	}
	return &dataset.RawMedia{
		Reference: ref,
		Path:      path,
		Ext:       "mp4",
		Size:      int64(len(data)),
	}, nil
}

func (f *fakeFetcher) attemptCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[id]
}

// stubTool satisfies ffmpeg.Tool for runs with no chain stages enabled.
type stubTool struct{}

func (stubTool) Probe(context.Context, string) (*ffmpeg.ProbeResult, error) {
	return nil, errors.New("not probed")
}
func (stubTool) Keyframes(context.Context, string) ([]float64, error) { return nil, nil }
func (stubTool) DetectSceneChanges(context.Context, string, float64, int) ([]float64, error) {
	return nil, nil
}
func (stubTool) ExtractClip(context.Context, string, string, float64, float64, bool) error {
	return errors.New("no clip support")
}
func (stubTool) Transcode(context.Context, string, string, string) error {
	return errors.New("no transcode support")
}
func (stubTool) ExtractAudio(context.Context, string, string) error {
	return errors.New("no audio stream")
}

type memSink struct {
	mu     sync.Mutex
	shards map[string][]byte
}

func newMemSink() *memSink { return &memSink{shards: map[string][]byte{}} }

func (s *memSink) Put(_ context.Context, name string, r io.Reader) error {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shards[name] = buf.Bytes()
	return nil
}

type memRepo struct {
	mu       sync.Mutex
	outcomes map[string]dataset.Outcome
	shards   []shard.WriteEvent
}

func newMemRepo() *memRepo { return &memRepo{outcomes: map[string]dataset.Outcome{}} }

func (r *memRepo) RecordOutcome(_ context.Context, o dataset.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[o.Reference.ID] = o
	return nil
}

func (r *memRepo) RecordShard(_ context.Context, ev shard.WriteEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shards = append(r.shards, ev)
	return nil
}

func (r *memRepo) Summary(_ context.Context) (outcomes.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s outcomes.Summary
	for _, o := range r.outcomes {
		switch o.Status {
		case dataset.OutcomeSucceeded:
			s.Succeeded++
		case dataset.OutcomeFailedTransient:
			s.TransientFailed++
		case dataset.OutcomeFailedPermanent:
			s.PermanentFailed++
		}
		s.Samples += o.Samples
	}
	s.Shards = len(r.shards)
	return s, nil
}

func (r *memRepo) ListFailed(_ context.Context, limit int) ([]dataset.Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []dataset.Outcome
	for _, o := range r.outcomes {
		if o.Status != dataset.OutcomeSucceeded && len(out) < limit {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *memRepo) status(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcomes[id].Status
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.TmpDir = t.TempDir()
	cfg.Stages = nil
	cfg.SubjobSize = 100
	cfg.Workers = 2
	cfg.ThreadsPerWorker = 4
	return &cfg
}

func makeRefs(n int) []dataset.Reference {
	refs := make([]dataset.Reference, n)
	for i := range refs {
		refs[i] = dataset.Reference{
			ID:      fmt.Sprintf("%09d", i),
			URL:     fmt.Sprintf("https://example.com/v/%d", i),
			Caption: "a clip",
			Index:   i,
		}
	}
	return refs
}

func setup(t *testing.T, cfg *config.Config, fetcher *fakeFetcher, pool *credentials.Pool, repo outcomes.Repository) (*Distributor, *memSink) {
	t.Helper()
	sink := newMemSink()

	var dist *Distributor
	writer := shard.NewWriter(cfg.SamplesPerShard, cfg.OOMShardCount, sink, testLogger(), func(ev shard.WriteEvent) {
		dist.ShardWritten(ev)
	})
	dist = New(cfg, fetcher, stubTool{}, pool, writer, repo, testLogger())
	return dist, sink
}

func TestPartition(t *testing.T) {
	refs := makeRefs(10)

	tests := []struct {
		size string
		n    int
		want []int
	}{
		{"3", 3, []int{3, 3, 3, 1}},
		{"10", 10, []int{10}},
		{"20", 20, []int{10}},
		{"0", 0, []int{10}},
	}
	for _, tt := range tests {
		got := Partition(refs, tt.n)
		if len(got) != len(tt.want) {
			t.Errorf("Partition(size=%s) = %d subjobs, want %d", tt.size, len(got), len(tt.want))
			continue
		}
		for i, sj := range got {
			if len(sj) != tt.want[i] {
				t.Errorf("Partition(size=%s) subjob %d has %d refs, want %d", tt.size, i, len(sj), tt.want[i])
			}
		}
	}

	// Manifest order is preserved across subjob boundaries.
	parts := Partition(refs, 4)
	idx := 0
	for _, sj := range parts {
		for _, ref := range sj {
			if ref.Index != idx {
				t.Fatalf("reference out of order: got index %d, want %d", ref.Index, idx)
			}
			idx++
		}
	}
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	fetcher := newFakeFetcher(t)
	pool := credentials.NewPool(nil, 1, testLogger())
	repo := newMemRepo()
	dist, sink := setup(t, cfg, fetcher, pool, repo)

	refs := makeRefs(2500)
	sum, err := dist.Run(context.Background(), refs)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if sum.Succeeded != 2500 || sum.Samples != 2500 {
		t.Errorf("summary = %+v, want 2500 succeeded and 2500 samples", sum)
	}
	if sum.TransientFailed != 0 || sum.PermanentFailed != 0 {
		t.Errorf("unexpected failures: %+v", sum)
	}
	if sum.Shards != 3 {
		t.Errorf("Shards = %d, want 3", sum.Shards)
	}
	for _, name := range []string{"00000.tar", "00001.tar", "00002.tar"} {
		if _, ok := sink.shards[name]; !ok {
			t.Errorf("missing shard %s", name)
		}
	}

	// Fetched media files are cleaned up as references complete.
	entries, err := os.ReadDir(fetcher.dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("fetch dir has %d leftover files", len(entries))
	}

	rs, err := repo.Summary(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rs.Succeeded != 2500 {
		t.Errorf("recorded outcomes = %+v", rs)
	}
}

func TestRun_FailuresAreIsolated(t *testing.T) {
	cfg := testConfig(t)
	fetcher := newFakeFetcher(t)
	fetcher.fail = func(ref dataset.Reference, _ int) error {
		switch ref.Index {
		case 3:
			return classified{msg: "video unavailable", kind: dataset.KindPermanent}
		case 5:
			return classified{msg: "rate limited", kind: dataset.KindTransient}
		}
		return nil
	}
	pool := credentials.NewPool(nil, 1, testLogger())
	repo := newMemRepo()
	dist, _ := setup(t, cfg, fetcher, pool, repo)

	refs := makeRefs(10)
	sum, err := dist.Run(context.Background(), refs)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if sum.Succeeded != 8 || sum.PermanentFailed != 1 || sum.TransientFailed != 1 {
		t.Errorf("summary = %+v, want 8/1/1", sum)
	}
	if got := repo.status(refs[3].ID); got != dataset.OutcomeFailedPermanent {
		t.Errorf("reference 3 status = %q", got)
	}
	if got := repo.status(refs[5].ID); got != dataset.OutcomeFailedTransient {
		t.Errorf("reference 5 status = %q", got)
	}
	// A permanent failure is not retried.
	if n := fetcher.attemptCount(refs[3].ID); n != 1 {
		t.Errorf("permanent failure fetched %d times, want 1", n)
	}
	// A transient failure consumes every attempt.
	if n := fetcher.attemptCount(refs[5].ID); n != maxFetchAttempts {
		t.Errorf("transient failure fetched %d times, want %d", n, maxFetchAttempts)
	}
}

func TestRun_TransientRecoversOnRetry(t *testing.T) {
	cfg := testConfig(t)
	fetcher := newFakeFetcher(t)
	fetcher.fail = func(_ dataset.Reference, attempt int) error {
		if attempt < 3 {
			return classified{msg: "timeout", kind: dataset.KindTransient}
		}
		return nil
	}
	pool := credentials.NewPool(nil, 1, testLogger())
	dist, _ := setup(t, cfg, fetcher, pool, nil)

	refs := makeRefs(1)
	sum, err := dist.Run(context.Background(), refs)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.Succeeded != 1 {
		t.Errorf("summary = %+v, want 1 succeeded", sum)
	}
	if n := fetcher.attemptCount(refs[0].ID); n != 3 {
		t.Errorf("fetched %d times, want 3", n)
	}
}

func TestRun_PoolExhaustionStopsRun(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workers = 1
	cfg.ThreadsPerWorker = 1
	fetcher := newFakeFetcher(t)
	fetcher.fail = func(dataset.Reference, int) error {
		return classified{msg: "rate limited", kind: dataset.KindTransient}
	}

	cookie := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(cookie, []byte("# netscape"), 0o644); err != nil {
		t.Fatal(err)
	}
	pool := credentials.NewPool([]string{cookie}, 1, testLogger())
	dist, _ := setup(t, cfg, fetcher, pool, nil)

	_, err := dist.Run(context.Background(), makeRefs(50))
	if !errors.Is(err, credentials.ErrPoolExhausted) {
		t.Fatalf("Run() error = %v, want pool exhaustion", err)
	}
}

func TestProgress_CountersAdvance(t *testing.T) {
	cfg := testConfig(t)
	fetcher := newFakeFetcher(t)
	pool := credentials.NewPool(nil, 1, testLogger())
	dist, _ := setup(t, cfg, fetcher, pool, nil)

	if _, err := dist.Run(context.Background(), makeRefs(7)); err != nil {
		t.Fatal(err)
	}
	snap := dist.Progress().Snapshot()
	if snap.Total != 7 || snap.Processed != 7 || snap.Succeeded != 7 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Samples != 7 {
		t.Errorf("Samples = %d, want 7", snap.Samples)
	}
}
