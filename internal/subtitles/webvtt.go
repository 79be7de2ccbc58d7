// Package subtitles parses WebVTT subtitle tracks into caption cues.
// Auto-generated tracks repeat lines across overlapping cues and carry
// inline timing tags; Parse strips both so captions read cleanly.
package subtitles

import (
	"bufio"
	"io"
	"strings"

	"github.com/vid2set/vid2set/internal/dataset"
)

// Parse reads a WebVTT document and returns deduplicated cues. Cues
// containing inline <c> timing tags are rolling duplicates of the
// following cue and are skipped entirely; within a cue, blank lines and
// lines repeating the previous emitted line are dropped.
func Parse(r io.Reader) ([]dataset.SubtitleCue, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var cues []dataset.SubtitleCue
	var cur *dataset.SubtitleCue
	var lines []string
	prevLine := ""
	skip := false

	flush := func() {
		if cur == nil {
			return
		}
		if !skip && len(lines) > 0 {
			cur.Line = strings.Join(lines, "\n")
			cues = append(cues, *cur)
		}
		cur, lines, skip = nil, nil, false
	}

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")

		if start, end, ok := parseTiming(line); ok {
			flush()
			cur = &dataset.SubtitleCue{Start: start, End: end}
			continue
		}

		if cur == nil {
			continue // header, cue identifiers, NOTE blocks
		}
		if line == "" {
			flush()
			continue
		}
		if strings.Contains(line, "<c>") || strings.Contains(line, "<c.") {
			skip = true
			continue
		}
		if line == prevLine {
			continue
		}
		lines = append(lines, line)
		prevLine = line
	}
	flush()

	if err := sc.Err(); err != nil {
		return nil, err
	}
	return cues, nil
}

// Text joins all cue lines into a single caption string.
func Text(cues []dataset.SubtitleCue) string {
	var b strings.Builder
	for i, c := range cues {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(c.Line)
	}
	return b.String()
}

// parseTiming matches "HH:MM:SS.mmm --> HH:MM:SS.mmm" cue timing lines,
// tolerating trailing cue settings after the end timestamp.
func parseTiming(line string) (start, end string, ok bool) {
	idx := strings.Index(line, "-->")
	if idx < 0 {
		return "", "", false
	}
	start = strings.TrimSpace(line[:idx])
	rest := strings.TrimSpace(line[idx+3:])
	if i := strings.IndexByte(rest, ' '); i >= 0 {
		rest = rest[:i]
	}
	end = rest
	if !isTimestamp(start) || !isTimestamp(end) {
		return "", "", false
	}
	return start, end, true
}

func isTimestamp(s string) bool {
	colons := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
		case r == ':':
			colons++
		default:
			return false
		}
	}
	return colons >= 1 && colons <= 2
}
