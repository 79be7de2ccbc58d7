// Package ffmpeg adapts the ffmpeg and ffprobe command-line tools into
// the media operations the subsampling chain needs. The chain depends
// only on the Tool interface; tests substitute fakes.
package ffmpeg

import "context"

// Tool is the media-operation contract the pipeline stages consume.
type Tool interface {
	// Probe extracts container, codec and stream metadata.
	Probe(ctx context.Context, path string) (*ProbeResult, error)

	// Keyframes returns the keyframe timestamps of the primary video
	// stream, in seconds, ascending.
	Keyframes(ctx context.Context, path string) ([]float64, error)

	// DetectSceneChanges returns timestamps (seconds) where the frame
	// difference score exceeds threshold. rate > 0 resamples the video
	// to that frame rate before scoring; 0 keeps the native rate.
	DetectSceneChanges(ctx context.Context, path string, threshold float64, rate int) ([]float64, error)

	// ExtractClip writes [start, end) of in to out. When reencode is
	// false the streams are copied, which is only frame-accurate at
	// keyframe boundaries; reencode true seeks frame-accurately.
	ExtractClip(ctx context.Context, in, out string, start, end float64, reencode bool) error

	// Transcode re-encodes in to out applying the given video filter
	// graph (empty for a plain re-encode).
	Transcode(ctx context.Context, in, out, filtergraph string) error

	// ExtractAudio writes the audio stream of in to out in the format
	// implied by out's extension. It fails when in has no audio stream.
	ExtractAudio(ctx context.Context, in, out string) error
}
