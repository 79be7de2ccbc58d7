// Package dataset holds the data model shared across the pipeline:
// input references, fetched media, finished samples and per-reference
// outcomes.
package dataset

import (
	"time"

	"github.com/google/uuid"
)

// Reference identifies one video to process. It is read once from the
// input manifest and never mutated.
type Reference struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`

	// Index is the position of the reference in the input manifest.
	// Samples carry it so shard contents can be related back to input
	// order even when subjobs complete out of order.
	Index int `json:"-"`
}

// SubtitleCue is one caption cue extracted from a subtitle track.
type SubtitleCue struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Line  string `json:"line"`
}

// RawMedia is the fetched video plus whatever metadata the source
// provided. The bytes live on disk under Path; the worker that fetched
// the media owns the file until the chain consumes it or the reference
// fails.
type RawMedia struct {
	Reference Reference
	Path      string
	Ext       string
	Size      int64

	Width      int
	Height     int
	Duration   float64
	Subtitles  []SubtitleCue
	SourceInfo map[string]any

	// ClipSpan is set when the reference itself named a sub-span of the
	// source (portal references of the form <id>_<start>_<end>).
	ClipSpan *Span
}

// Span is a closed time interval in seconds.
type Span struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns the span length in seconds.
func (s Span) Duration() float64 { return s.End - s.Start }

// Sample is a fully transformed unit ready for storage. Every Sample
// handed to the shard writer has passed all enabled chain stages.
type Sample struct {
	Key      string
	Ext      string
	Data     []byte
	Caption  string
	Metadata map[string]any

	// AudioData holds a separately extracted audio track, when audio
	// output is configured and the source has an audio stream.
	AudioData []byte
	AudioExt  string

	// OriginIndex is the manifest index of the reference this sample
	// derives from.
	OriginIndex int
}

// Outcome states for a processed reference.
const (
	OutcomeSucceeded       = "succeeded"
	OutcomeFailedTransient = "failed_transient"
	OutcomeFailedPermanent = "failed_permanent"
)

// Outcome records the terminal state of one reference.
type Outcome struct {
	Reference Reference
	Status    string
	Samples   int
	Error     string
	Duration  time.Duration
}

// NewID returns a fresh identifier for temp artifacts and runs.
func NewID() string {
	return uuid.NewString()
}
