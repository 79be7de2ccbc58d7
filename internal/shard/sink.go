package shard

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FSSink writes shards to a directory on the local filesystem. Each
// shard lands under a temp name first and is renamed into place, so a
// crashed run never leaves a half-written shard with a final name.
type FSSink struct {
	dir string
}

// NewFSSink creates the output directory if needed.
func NewFSSink(dir string) (*FSSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &FSSink{dir: dir}, nil
}

func (s *FSSink) Put(ctx context.Context, name string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp := filepath.Join(s.dir, "."+name+".tmp")
	final := filepath.Join(s.dir, name)

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, final)
}

// Dir returns the sink's output directory.
func (s *FSSink) Dir() string { return s.dir }

var _ Sink = (*FSSink)(nil)
