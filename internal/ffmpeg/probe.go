package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FormatInfo holds container-level metadata from ffprobe's format section.
type FormatInfo struct {
	Name     string
	Duration float64
	Size     int64
	BitRate  int64
}

// VideoStream holds the parsed properties of the primary video stream.
type VideoStream struct {
	Codec     string
	PixFmt    string
	Width     int
	Height    int
	FrameRate float64
}

// AudioStream holds the parsed properties of the first audio stream.
type AudioStream struct {
	Codec      string
	Channels   int
	SampleRate int
}

// ProbeResult is the fully parsed output of a single ffprobe call.
// Video is the first non-attached-pic video stream (nil if none).
type ProbeResult struct {
	Format FormatInfo
	Video  *VideoStream
	Audio  *AudioStream

	StreamCount int
}

// Resolution returns "WxH" for the primary video stream, or "unknown".
func (p *ProbeResult) Resolution() string {
	if p.Video == nil || p.Video.Width <= 0 || p.Video.Height <= 0 {
		return "unknown"
	}
	return fmt.Sprintf("%dx%d", p.Video.Width, p.Video.Height)
}

// HasAudio reports whether the media carries an audio stream.
func (p *ProbeResult) HasAudio() bool { return p.Audio != nil }

// Metadata flattens the probe result into the key/value form stored
// alongside each sample.
func (p *ProbeResult) Metadata() map[string]any {
	m := map[string]any{
		"format":   p.Format.Name,
		"duration": p.Format.Duration,
		"size":     p.Format.Size,
	}
	if p.Format.BitRate > 0 {
		m["bit_rate"] = p.Format.BitRate
	}
	if p.Video != nil {
		m["video_codec"] = p.Video.Codec
		m["width"] = p.Video.Width
		m["height"] = p.Video.Height
		m["fps"] = p.Video.FrameRate
	}
	if p.Audio != nil {
		m["audio_codec"] = p.Audio.Codec
		m["audio_channels"] = p.Audio.Channels
		m["audio_sample_rate"] = p.Audio.SampleRate
	}
	return m
}

// ffprobe JSON wire types.
type probeDoc struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	PixFmt       string `json:"pix_fmt"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	SampleRate   string `json:"sample_rate"`
	Channels     int    `json:"channels"`
	Disposition  struct {
		AttachedPic int `json:"attached_pic"`
	} `json:"disposition"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
}

// Probe runs ffprobe and parses its JSON output.
func (e *Executor) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	res := e.run(ctx, e.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err := res.fail("probe"); err != nil {
		return nil, err
	}

	var doc probeDoc
	if err := json.Unmarshal(res.stdout, &doc); err != nil {
		return nil, fmt.Errorf("parse probe JSON: %w", err)
	}

	out := &ProbeResult{
		Format: FormatInfo{
			Name:     doc.Format.FormatName,
			Duration: parseFloat(doc.Format.Duration),
			Size:     parseInt(doc.Format.Size),
			BitRate:  parseInt(doc.Format.BitRate),
		},
		StreamCount: len(doc.Streams),
	}

	for i := range doc.Streams {
		s := &doc.Streams[i]
		switch s.CodecType {
		case "video":
			if out.Video != nil || s.Disposition.AttachedPic == 1 {
				continue
			}
			out.Video = &VideoStream{
				Codec:     s.CodecName,
				PixFmt:    s.PixFmt,
				Width:     s.Width,
				Height:    s.Height,
				FrameRate: parseRate(s.AvgFrameRate),
			}
			if out.Video.FrameRate == 0 {
				out.Video.FrameRate = parseRate(s.RFrameRate)
			}
		case "audio":
			if out.Audio != nil {
				continue
			}
			out.Audio = &AudioStream{
				Codec:      s.CodecName,
				Channels:   s.Channels,
				SampleRate: int(parseInt(s.SampleRate)),
			}
		}
	}

	return out, nil
}

type frameDoc struct {
	Frames []struct {
		PtsTime    string `json:"pts_time"`
		PktPtsTime string `json:"pkt_pts_time"`
	} `json:"frames"`
}

// Keyframes lists the keyframe timestamps of the primary video stream.
func (e *Executor) Keyframes(ctx context.Context, path string) ([]float64, error) {
	res := e.run(ctx, e.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-skip_frame", "nokey",
		"-show_entries", "frame=pts_time",
		"-print_format", "json",
		path,
	)
	if err := res.fail("keyframes"); err != nil {
		return nil, err
	}

	var doc frameDoc
	if err := json.Unmarshal(res.stdout, &doc); err != nil {
		return nil, fmt.Errorf("parse keyframe JSON: %w", err)
	}

	ts := make([]float64, 0, len(doc.Frames))
	for _, f := range doc.Frames {
		v := f.PtsTime
		if v == "" {
			v = f.PktPtsTime // older ffprobe field name
		}
		if v == "" {
			continue
		}
		ts = append(ts, parseFloat(v))
	}
	sort.Float64s(ts)
	return ts, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return v
}

// parseRate converts an ffprobe rational like "30000/1001" to a float.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseFloat(s)
	}
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return parseFloat(num) / d
}
