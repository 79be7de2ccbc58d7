// Package distribute fans the input manifest out to a bounded pool of
// workers. References are grouped into subjobs; each worker drains one
// subjob at a time with a fixed number of concurrent references, so the
// in-flight count never exceeds workers times threads per worker.
//
// Failures are isolated per reference: a failed fetch or transform
// records an outcome and the run moves on. Only credential-pool
// exhaustion and shard-index overflow stop the run.
package distribute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/vid2set/vid2set/internal/config"
	"github.com/vid2set/vid2set/internal/credentials"
	"github.com/vid2set/vid2set/internal/dataset"
	"github.com/vid2set/vid2set/internal/fetch"
	"github.com/vid2set/vid2set/internal/ffmpeg"
	"github.com/vid2set/vid2set/internal/logging"
	"github.com/vid2set/vid2set/internal/outcomes"
	"github.com/vid2set/vid2set/internal/shard"
	"github.com/vid2set/vid2set/internal/subsample"
	"github.com/vid2set/vid2set/internal/subtitles"
)

// maxFetchAttempts bounds the credential-rotating retry loop for one
// reference. Only transient failures consume extra attempts.
const maxFetchAttempts = 3

// Distributor owns a run: it partitions the manifest, schedules
// references onto workers and funnels finished samples into the shard
// writer.
type Distributor struct {
	cfg     *config.Config
	fetcher fetch.Fetcher
	tool    ffmpeg.Tool
	pool    *credentials.Pool
	writer  *shard.Writer
	repo    outcomes.Repository
	logger  *slog.Logger

	progress Progress

	mu    sync.Mutex
	fatal error
}

// New builds a distributor. repo may be nil when no run log is kept.
func New(cfg *config.Config, fetcher fetch.Fetcher, tool ffmpeg.Tool, pool *credentials.Pool, writer *shard.Writer, repo outcomes.Repository, logger *slog.Logger) *Distributor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Distributor{
		cfg:     cfg,
		fetcher: fetcher,
		tool:    tool,
		pool:    pool,
		writer:  writer,
		repo:    repo,
		logger:  logging.WithComponent(logger, "distribute"),
	}
}

// Progress exposes the live run counters.
func (d *Distributor) Progress() *Progress { return &d.progress }

// ShardWritten records a flushed shard in the progress counters. Wire
// it as the shard writer's event callback.
func (d *Distributor) ShardWritten(ev shard.WriteEvent) {
	d.progress.shards.Add(1)
	if d.repo != nil {
		if err := d.repo.RecordShard(context.Background(), ev); err != nil {
			d.logger.Warn("failed to record shard", "shard", ev.Name, "error", err)
		}
	}
}

type subjob struct {
	index int
	refs  []dataset.Reference
}

// Partition groups references into subjobs of at most size references,
// preserving manifest order within and across subjobs.
func Partition(refs []dataset.Reference, size int) [][]dataset.Reference {
	if size <= 0 {
		size = len(refs)
	}
	var out [][]dataset.Reference
	for start := 0; start < len(refs); start += size {
		end := start + size
		if end > len(refs) {
			end = len(refs)
		}
		out = append(out, refs[start:end])
	}
	return out
}

// Run processes every reference and returns the aggregate counts. The
// returned error is non-nil only for run-fatal conditions; individual
// reference failures are reflected in the summary instead.
func (d *Distributor) Run(ctx context.Context, refs []dataset.Reference) (outcomes.Summary, error) {
	d.progress.total.Store(int64(len(refs)))

	subjobs := Partition(refs, d.cfg.SubjobSize)
	d.logger.Info("run starting",
		"references", len(refs),
		"subjobs", len(subjobs),
		"workers", d.cfg.Workers,
		"threads_per_worker", d.cfg.ThreadsPerWorker,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan subjob)
	var wg sync.WaitGroup
	for w := 0; w < d.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sj := range jobs {
				d.runSubjob(ctx, sj, cancel)
			}
		}()
	}

feed:
	for i, sj := range subjobs {
		select {
		case jobs <- subjob{index: i, refs: sj}:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := d.runFatal(); err != nil {
		return d.summary(), err
	}
	if err := ctx.Err(); err != nil {
		return d.summary(), err
	}

	if err := d.writer.Finalize(ctx); err != nil {
		return d.summary(), fmt.Errorf("finalize shards: %w", err)
	}

	s := d.summary()
	d.logger.Info("run complete",
		"succeeded", s.Succeeded,
		"failed_transient", s.TransientFailed,
		"failed_permanent", s.PermanentFailed,
		"samples", s.Samples,
		"shards", s.Shards,
	)
	return s, nil
}

// runSubjob drains one subjob with at most ThreadsPerWorker references
// in flight. References start in manifest order; completion order
// within the subjob is best effort.
func (d *Distributor) runSubjob(ctx context.Context, sj subjob, cancel context.CancelFunc) {
	logger := logging.WithSubjob(d.logger, sj.index)
	logger.Debug("subjob starting", "references", len(sj.refs))

	sem := make(chan struct{}, d.cfg.ThreadsPerWorker)
	var wg sync.WaitGroup
	for _, ref := range sj.refs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(ref dataset.Reference) {
			defer wg.Done()
			defer func() { <-sem }()
			d.processOne(ctx, ref, cancel, logger)
		}(ref)
	}
	wg.Wait()
	logger.Debug("subjob complete")
}

// processOne runs a single reference end to end and records its
// outcome. Run-fatal errors cancel the whole run.
func (d *Distributor) processOne(ctx context.Context, ref dataset.Reference, cancel context.CancelFunc, logger *slog.Logger) {
	start := time.Now()
	samples, err := d.processReference(ctx, ref)

	o := dataset.Outcome{
		Reference: ref,
		Samples:   samples,
		Duration:  time.Since(start),
	}

	switch {
	case err == nil:
		o.Status = dataset.OutcomeSucceeded
		d.progress.succeeded.Add(1)
		d.progress.samples.Add(int64(samples))
	case errors.Is(err, credentials.ErrPoolExhausted), errors.Is(err, shard.ErrShardOverflow):
		o.Status = dataset.OutcomeFailedTransient
		o.Error = err.Error()
		d.progress.transientFailed.Add(1)
		d.setFatal(err)
		cancel()
	case ctx.Err() != nil:
		o.Status = dataset.OutcomeFailedTransient
		o.Error = ctx.Err().Error()
		d.progress.transientFailed.Add(1)
	case dataset.IsTransient(err):
		o.Status = dataset.OutcomeFailedTransient
		o.Error = err.Error()
		d.progress.transientFailed.Add(1)
	default:
		o.Status = dataset.OutcomeFailedPermanent
		o.Error = err.Error()
		d.progress.permanentFailed.Add(1)
	}
	d.progress.processed.Add(1)

	if err != nil {
		logging.WithReference(logger, ref.ID).Warn("reference failed",
			"url", ref.URL,
			"status", o.Status,
			"error", o.Error,
		)
	}

	if d.repo != nil {
		// Outcomes survive cancellation so a rerun can resume.
		if rerr := d.repo.RecordOutcome(context.WithoutCancel(ctx), o); rerr != nil {
			logger.Warn("failed to record outcome", "reference_id", ref.ID, "error", rerr)
		}
	}
}

// fetchWithRetry fetches one reference, rotating credentials on
// transient failures. Pool exhaustion propagates to the caller.
func (d *Distributor) fetchWithRetry(ctx context.Context, ref dataset.Reference) (*dataset.RawMedia, error) {
	var lastErr error
	for attempt := 0; attempt < maxFetchAttempts; attempt++ {
		cred, err := d.pool.Acquire()
		if err != nil {
			return nil, err
		}

		media, err := d.fetcher.Fetch(ctx, ref, cred)
		if cred != nil {
			d.pool.Release(cred, err == nil)
		}
		if err == nil {
			return media, nil
		}
		lastErr = err
		if !dataset.IsTransient(err) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// processReference fetches, transforms and stores one reference,
// returning the number of samples produced.
func (d *Distributor) processReference(ctx context.Context, ref dataset.Reference) (int, error) {
	media, err := d.fetchWithRetry(ctx, ref)
	if err != nil {
		return 0, err
	}
	defer os.Remove(media.Path)

	workDir, err := os.MkdirTemp(d.cfg.TmpDir, "ref-")
	if err != nil {
		return 0, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	root := &subsample.Artifact{
		Source: ref,
		Path:   media.Path,
		Ext:    media.Ext,
		Span:   media.ClipSpan,
	}
	if len(media.SourceInfo) > 0 {
		root.SetMeta("source_info", media.SourceInfo)
	}

	chain := subsample.NewChain(d.cfg, d.tool, workDir, d.logger)
	arts, err := chain.Run(ctx, root)
	if err != nil {
		return 0, err
	}

	caption := d.caption(ref, media)
	multi := d.cfg.StageEnabled(config.StageClipping)

	count := 0
	for _, art := range arts {
		sample, err := d.buildSample(ctx, ref, art, caption, multi)
		if err != nil {
			return count, err
		}
		if err := d.writer.Add(ctx, *sample); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// caption picks the sample caption: the subtitle transcript when
// configured and present, the manifest caption otherwise.
func (d *Distributor) caption(ref dataset.Reference, media *dataset.RawMedia) string {
	if d.cfg.CaptionsFromSubtitles && len(media.Subtitles) > 0 {
		return subtitles.Text(media.Subtitles)
	}
	return ref.Caption
}

// buildSample reads a finished artifact into a storage-ready sample,
// extracting the audio track alongside when configured.
func (d *Distributor) buildSample(ctx context.Context, ref dataset.Reference, art *subsample.Artifact, caption string, multi bool) (*dataset.Sample, error) {
	data, err := os.ReadFile(art.Path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}

	key := ref.ID
	if multi {
		key = fmt.Sprintf("%s_%03d", ref.ID, art.ClipIndex)
	}

	meta := make(map[string]any, len(art.Meta)+4)
	for k, v := range art.Meta {
		meta[k] = v
	}
	meta["key"] = key
	meta["url"] = ref.URL
	if caption != "" {
		meta["caption"] = caption
	}
	if art.Span != nil {
		meta["clip_span"] = []float64{art.Span.Start, art.Span.End}
	}

	s := &dataset.Sample{
		Key:         key,
		Ext:         art.Ext,
		Data:        data,
		Caption:     caption,
		Metadata:    meta,
		OriginIndex: ref.Index,
	}

	if d.cfg.AudioFormat != "" {
		audioPath := art.Path + "." + d.cfg.AudioFormat
		if err := d.tool.ExtractAudio(ctx, art.Path, audioPath); err != nil {
			// Sources without an audio stream stay video-only.
			d.logger.Debug("audio extraction skipped",
				"reference_id", ref.ID,
				"error", err,
			)
		} else {
			audio, err := os.ReadFile(audioPath)
			os.Remove(audioPath)
			if err != nil {
				return nil, fmt.Errorf("read audio track: %w", err)
			}
			s.AudioData = audio
			s.AudioExt = d.cfg.AudioFormat
		}
	}

	return s, nil
}

func (d *Distributor) setFatal(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fatal == nil {
		d.fatal = err
	}
}

func (d *Distributor) runFatal() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fatal
}

func (d *Distributor) summary() outcomes.Summary {
	snap := d.progress.Snapshot()
	return outcomes.Summary{
		Succeeded:       int(snap.Succeeded),
		TransientFailed: int(snap.TransientFailed),
		PermanentFailed: int(snap.PermanentFailed),
		Samples:         int(snap.Samples),
		Shards:          d.writer.Flushed(),
	}
}
