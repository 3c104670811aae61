// Package vtt provides the caption cue model and segmented WebVTT
// serialization. Cue times are seconds. A serialized segment carries
// segment-local times, so the HLS media-sequence alignment provides the
// global offset and no X-TIMESTAMP-MAP header is written.
package vtt

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Cue is one captioned interval. Start and End are in seconds on
// whatever timeline the holder uses (reference or segment-local).
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// Clip maps c into the local coordinates of the window [w0, w1).
// The overlap test is half-open: a cue starting at w1 or ending at w0
// does not belong to the window. Returns false if there is no overlap.
func Clip(c Cue, w0, w1 float64) (Cue, bool) {
	if c.End <= w0 || c.Start >= w1 {
		return Cue{}, false
	}
	local := Cue{
		Start: c.Start - w0,
		End:   c.End - w0,
		Text:  c.Text,
	}
	if local.Start < 0 {
		local.Start = 0
	}
	if local.End > w1-w0 {
		local.End = w1 - w0
	}
	return local, true
}

// Timestamp formats seconds as HH:MM:SS.mmm with hours wrapped modulo 100.
func Timestamp(seconds float64) string {
	ms := int(math.Round(seconds * 1000))
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3600_000 % 100
	ms %= 3600_000
	minutes := ms / 60_000
	ms %= 60_000
	secs := ms / 1_000
	ms %= 1_000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, secs, ms)
}

// WriteSegment writes a complete WebVTT segment: the WEBVTT header, a blank
// line, and one numbered cue block per cue in order. Cue identifiers are
// 1-based within the file. The output is deterministic for a given cue list.
func WriteSegment(w io.Writer, cues []Cue) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("WEBVTT\n\n"); err != nil {
		return err
	}
	for i, c := range cues {
		if _, err := fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n",
			i+1, Timestamp(c.Start), Timestamp(c.End), c.Text); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ParseTimestamp parses HH:MM:SS.mmm into seconds.
func ParseTimestamp(ts string) (float64, error) {
	parts := strings.Split(ts, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("bad timestamp %q", ts)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("bad hours in %q", ts)
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("bad minutes in %q", ts)
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, fmt.Errorf("bad seconds in %q", ts)
	}
	return float64(hours)*3600 + float64(minutes)*60 + seconds, nil
}

// Parse reads a WebVTT segment back into cues. Cue identifiers are
// discarded; multi-line cue payloads are joined with newlines.
func Parse(r io.Reader) ([]Cue, error) {
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return nil, fmt.Errorf("empty input")
	}
	if !strings.HasPrefix(sc.Text(), "WEBVTT") {
		return nil, fmt.Errorf("missing WEBVTT header")
	}
	var cues []Cue
	for sc.Scan() {
		line := sc.Text()
		if !strings.Contains(line, "-->") {
			continue
		}
		startStr, endStr, ok := strings.Cut(line, "-->")
		if !ok {
			continue
		}
		start, err := ParseTimestamp(strings.TrimSpace(startStr))
		if err != nil {
			return nil, err
		}
		end, err := ParseTimestamp(strings.TrimSpace(endStr))
		if err != nil {
			return nil, err
		}
		var textLines []string
		for sc.Scan() {
			t := sc.Text()
			if t == "" {
				break
			}
			textLines = append(textLines, t)
		}
		cues = append(cues, Cue{
			Start: start,
			End:   end,
			Text:  strings.Join(textLines, "\n"),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return cues, nil
}
