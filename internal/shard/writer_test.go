package shard

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/vid2set/vid2set/internal/dataset"
)

// memSink collects shards in memory.
type memSink struct {
	mu     sync.Mutex
	shards map[string][]byte
	names  []string
}

func newMemSink() *memSink { return &memSink{shards: map[string][]byte{}} }

func (s *memSink) Put(_ context.Context, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shards[name] = data
	s.names = append(s.names, name)
	return nil
}

func sample(i int) dataset.Sample {
	return dataset.Sample{
		Key:      fmt.Sprintf("%09d", i),
		Ext:      "mp4",
		Data:     []byte("media"),
		Caption:  "a caption",
		Metadata: map[string]any{"duration": 1.0},
	}
}

func TestWriter_ShardCapacityAndNaming(t *testing.T) {
	sink := newMemSink()
	var events []WriteEvent
	w := NewWriter(1000, 5, sink, nil, func(ev WriteEvent) { events = append(events, ev) })

	ctx := context.Background()
	for i := 0; i < 2500; i++ {
		if err := w.Add(ctx, sample(i)); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	if err := w.Finalize(ctx); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	want := []string{"00000.tar", "00001.tar", "00002.tar"}
	if len(sink.names) != len(want) {
		t.Fatalf("shards = %v, want %v", sink.names, want)
	}
	for i, name := range want {
		if sink.names[i] != name {
			t.Errorf("shard %d = %s, want %s", i, sink.names[i], name)
		}
	}

	if events[0].Samples != 1000 || events[1].Samples != 1000 || events[2].Samples != 500 {
		t.Errorf("event sample counts = %d,%d,%d", events[0].Samples, events[1].Samples, events[2].Samples)
	}
	for _, ev := range events {
		if len(ev.Name) != len("00000.tar") {
			t.Errorf("shard name %q not zero-padded to 5 digits", ev.Name)
		}
	}
}

func TestWriter_BundleLayout(t *testing.T) {
	sink := newMemSink()
	w := NewWriter(1, 3, sink, nil, nil)

	s := sample(7)
	s.AudioData = []byte("audio")
	s.AudioExt = "m4a"
	if err := w.Add(context.Background(), s); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	data := sink.shards["000.tar"]
	if data == nil {
		t.Fatalf("shard not written, have %v", sink.names)
	}

	entries := map[string][]byte{}
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("tar read: %v", err)
		}
		b, _ := io.ReadAll(tr)
		entries[hdr.Name] = b
	}

	key := s.Key
	if string(entries[key+".mp4"]) != "media" {
		t.Errorf("media entry = %q", entries[key+".mp4"])
	}
	if string(entries[key+".m4a"]) != "audio" {
		t.Errorf("audio entry = %q", entries[key+".m4a"])
	}
	if string(entries[key+".txt"]) != "a caption" {
		t.Errorf("caption entry = %q", entries[key+".txt"])
	}
	if !bytes.Contains(entries[key+".json"], []byte("duration")) {
		t.Errorf("metadata entry = %q", entries[key+".json"])
	}
}

func TestWriter_Overflow(t *testing.T) {
	sink := newMemSink()
	w := NewWriter(1, 1, sink, nil, nil)

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := w.Add(ctx, sample(i)); err != nil {
			t.Fatalf("Add(%d) error = %v", i, err)
		}
	}
	err := w.Add(ctx, sample(10))
	if !errors.Is(err, ErrShardOverflow) {
		t.Errorf("Add() error = %v, want ErrShardOverflow", err)
	}
}

func TestWriter_FinalizeEmptyIsNoOp(t *testing.T) {
	sink := newMemSink()
	w := NewWriter(10, 2, sink, nil, nil)
	if err := w.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if len(sink.names) != 0 {
		t.Errorf("shards = %v, want none", sink.names)
	}
}

func TestWriter_ConcurrentProducers(t *testing.T) {
	sink := newMemSink()
	w := NewWriter(100, 4, sink, nil, nil)

	ctx := context.Background()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 125; i++ {
				if err := w.Add(ctx, sample(g*1000+i)); err != nil {
					t.Errorf("Add() error = %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	if err := w.Finalize(ctx); err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}

	total := 0
	for name, data := range sink.shards {
		count := 0
		tr := tar.NewReader(bytes.NewReader(data))
		for {
			hdr, err := tr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("tar read %s: %v", name, err)
			}
			if filepath.Ext(hdr.Name) == ".mp4" {
				count++
			}
		}
		total += count
	}
	if total != 1000 {
		t.Errorf("total samples across shards = %d, want 1000", total)
	}
	if len(sink.shards) != 10 {
		t.Errorf("shard count = %d, want 10 full shards", len(sink.shards))
	}
}

func TestFSSink_Put(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFSSink(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("NewFSSink() error = %v", err)
	}

	if err := sink.Put(context.Background(), "00000.tar", bytes.NewReader([]byte("shard"))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "out", "00000.tar"))
	if err != nil || string(data) != "shard" {
		t.Errorf("shard file = %q, %v", data, err)
	}

	leftovers, _ := filepath.Glob(filepath.Join(dir, "out", ".*.tmp"))
	if len(leftovers) != 0 {
		t.Errorf("temp files left behind: %v", leftovers)
	}
}
