package subtitles

import (
	"strings"
	"testing"
)

const sampleVTT = `WEBVTT
Kind: captions
Language: en

00:00:00.000 --> 00:00:02.500
hello world

00:00:02.500 --> 00:00:04.000 align:start position:0%
hello<00:00:02.700><c> world</c><c.colorCCCCCC> again</c>

00:00:04.000 --> 00:00:06.000
hello again
hello again

00:00:06.000 --> 00:00:08.000

`

func TestParse_DedupesAndSkipsTagCues(t *testing.T) {
	cues, err := Parse(strings.NewReader(sampleVTT))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(cues) != 2 {
		t.Fatalf("len(cues) = %d, want 2: %+v", len(cues), cues)
	}
	if cues[0].Line != "hello world" {
		t.Errorf("cues[0].Line = %q", cues[0].Line)
	}
	if cues[0].Start != "00:00:00.000" || cues[0].End != "00:00:02.500" {
		t.Errorf("cues[0] timing = %s --> %s", cues[0].Start, cues[0].End)
	}
	if cues[1].Line != "hello again" {
		t.Errorf("cues[1].Line = %q, want duplicate lines collapsed", cues[1].Line)
	}
}

func TestParse_CueSettingsAfterEnd(t *testing.T) {
	cues, err := Parse(strings.NewReader("WEBVTT\n\n00:01.000 --> 00:03.000 line:0\ntext\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(cues) != 1 || cues[0].End != "00:03.000" {
		t.Fatalf("cues = %+v", cues)
	}
}

func TestText(t *testing.T) {
	cues, err := Parse(strings.NewReader(sampleVTT))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := Text(cues); got != "hello world\nhello again" {
		t.Errorf("Text() = %q", got)
	}
}
