// Package subsample runs fetched media through an ordered chain of
// transform stages: cut detection, clipping, resolution and frame-rate
// normalization, and probing. Each stage consumes one artifact plus its
// accumulated metadata and produces zero, one or many derived artifacts.
package subsample

import (
	"context"

	"github.com/vid2set/vid2set/internal/dataset"
)

// Artifact is one media file flowing through the chain together with
// everything earlier stages learned about it.
type Artifact struct {
	Source dataset.Reference

	Path string
	Ext  string

	// Span is the interval of the source this artifact covers, nil for
	// the whole media.
	Span *dataset.Span

	// CutList holds detected scene boundaries, produced by the cut
	// detection stage and consumed by the clipper when cut boundaries
	// drive clipping.
	CutList []dataset.Span

	// Keyframes are the source keyframe timestamps, filled before the
	// clipper runs when keyframe-adjusted precision is configured.
	Keyframes []float64

	// ClipIndex numbers sibling clips of the same source.
	ClipIndex int

	Meta map[string]any
}

// SetMeta records a metadata key, allocating the map on first use.
func (a *Artifact) SetMeta(key string, value any) {
	if a.Meta == nil {
		a.Meta = map[string]any{}
	}
	a.Meta[key] = value
}

// clone copies the artifact for a derived output, sharing the metadata
// snapshot accumulated so far.
func (a *Artifact) clone() *Artifact {
	out := *a
	out.Meta = make(map[string]any, len(a.Meta))
	for k, v := range a.Meta {
		out.Meta[k] = v
	}
	return &out
}

// Stage is one link of the subsampling chain.
type Stage interface {
	Name() string
	Transform(ctx context.Context, a *Artifact) ([]*Artifact, error)
}
