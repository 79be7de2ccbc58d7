// Package shard accumulates finished samples into fixed-capacity tar
// bundles named by dense, zero-padded indices, and flushes them to a
// durable sink.
package shard

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/vid2set/vid2set/internal/dataset"
)

// ErrShardOverflow is returned when the run produces more shards than
// the configured digit width can represent.
var ErrShardOverflow = errors.New("shard index overflow")

// WriteEvent describes one shard flushed to the sink.
type WriteEvent struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Samples int    `json:"samples"`
	Bytes   int64  `json:"bytes"`
}

// Sink is the durable storage backend shards are flushed to. The
// pipeline stays agnostic to what sits behind it.
type Sink interface {
	Put(ctx context.Context, name string, r io.Reader) error
}

// Writer buffers samples and flushes a shard once the buffer reaches
// capacity. It is the single synchronized accumulator shared by all
// workers: Add and Finalize are safe for concurrent producers, and the
// internal lock is the one serialization point for shard output.
type Writer struct {
	mu        sync.Mutex
	capacity  int
	digits    int
	maxShards int
	sink      Sink
	logger    *slog.Logger
	onEvent   func(WriteEvent)

	buf     []dataset.Sample
	next    int
	flushed int
}

// NewWriter builds a shard writer. onEvent, when non-nil, is invoked
// synchronously after each successful flush.
func NewWriter(capacity, digits int, sink Sink, logger *slog.Logger, onEvent func(WriteEvent)) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	maxShards := 1
	for i := 0; i < digits; i++ {
		maxShards *= 10
	}
	return &Writer{
		capacity:  capacity,
		digits:    digits,
		maxShards: maxShards,
		sink:      sink,
		logger:    logger,
		onEvent:   onEvent,
		buf:       make([]dataset.Sample, 0, capacity),
	}
}

// Add buffers one sample, flushing a full shard when the buffer
// reaches capacity.
func (w *Writer) Add(ctx context.Context, s dataset.Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, s)
	if len(w.buf) >= w.capacity {
		return w.flushLocked(ctx)
	}
	return nil
}

// Finalize flushes any partial trailing shard.
func (w *Writer) Finalize(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.buf) == 0 {
		return nil
	}
	return w.flushLocked(ctx)
}

// Flushed returns the number of shards written so far.
func (w *Writer) Flushed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushed
}

func (w *Writer) flushLocked(ctx context.Context) error {
	if w.next >= w.maxShards {
		return fmt.Errorf("%w: shard %d does not fit in %d digits", ErrShardOverflow, w.next, w.digits)
	}

	name := fmt.Sprintf("%0*d.tar", w.digits, w.next)
	data, err := encodeShard(w.buf)
	if err != nil {
		return fmt.Errorf("encode shard %s: %w", name, err)
	}

	if err := w.sink.Put(ctx, name, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write shard %s: %w", name, err)
	}

	ev := WriteEvent{
		Index:   w.next,
		Name:    name,
		Samples: len(w.buf),
		Bytes:   int64(len(data)),
	}
	w.logger.Info("shard written",
		"shard", name,
		"samples", ev.Samples,
		"size", humanize.Bytes(uint64(ev.Bytes)),
	)

	w.next++
	w.flushed++
	w.buf = w.buf[:0]

	if w.onEvent != nil {
		w.onEvent(ev)
	}
	return nil
}

// encodeShard packs samples into a tar bundle: for each sample key K,
// K.<ext> with the media bytes, K.txt with the caption, K.json with the
// metadata, and K.<audio ext> when an audio track was extracted.
func encodeShard(samples []dataset.Sample) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	now := time.Now()

	writeEntry := func(name string, data []byte) error {
		hdr := &tar.Header{
			Name:    name,
			Mode:    0o644,
			Size:    int64(len(data)),
			ModTime: now,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err := tw.Write(data)
		return err
	}

	for _, s := range samples {
		if err := writeEntry(s.Key+"."+s.Ext, s.Data); err != nil {
			return nil, err
		}
		if len(s.AudioData) > 0 && s.AudioExt != "" {
			if err := writeEntry(s.Key+"."+s.AudioExt, s.AudioData); err != nil {
				return nil, err
			}
		}
		if err := writeEntry(s.Key+".txt", []byte(s.Caption)); err != nil {
			return nil, err
		}
		meta, err := json.Marshal(s.Metadata)
		if err != nil {
			return nil, err
		}
		if err := writeEntry(s.Key+".json", meta); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
