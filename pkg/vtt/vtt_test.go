package vtt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestamp(t *testing.T) {
	testCases := []struct {
		seconds float64
		wanted  string
	}{
		{0, "00:00:00.000"},
		{2, "00:00:02.000"},
		{10, "00:00:10.000"},
		{61.5, "00:01:01.500"},
		{3661.25, "01:01:01.250"},
		{36605.230, "10:10:05.230"},
		{360000, "00:00:00.000"}, // hours wrap modulo 100
		{-1, "00:00:00.000"},
	}
	for _, tc := range testCases {
		got := Timestamp(tc.seconds)
		require.Equal(t, tc.wanted, got, "seconds=%f", tc.seconds)
	}
}

func TestClip(t *testing.T) {
	testCases := []struct {
		desc       string
		cue        Cue
		w0, w1     float64
		wantedCue  Cue
		wantedKeep bool
	}{
		{
			desc:       "fully contained",
			cue:        Cue{Start: 12, End: 15, Text: "a"},
			w0:         10,
			w1:         20,
			wantedCue:  Cue{Start: 2, End: 5, Text: "a"},
			wantedKeep: true,
		},
		{
			desc:       "spans start of window",
			cue:        Cue{Start: 8, End: 12, Text: "b"},
			w0:         10,
			w1:         20,
			wantedCue:  Cue{Start: 0, End: 2, Text: "b"},
			wantedKeep: true,
		},
		{
			desc:       "spans end of window",
			cue:        Cue{Start: 18, End: 25, Text: "c"},
			w0:         10,
			w1:         20,
			wantedCue:  Cue{Start: 8, End: 10, Text: "c"},
			wantedKeep: true,
		},
		{
			desc:       "starts at window end is excluded",
			cue:        Cue{Start: 20, End: 22, Text: "d"},
			w0:         10,
			w1:         20,
			wantedKeep: false,
		},
		{
			desc:       "ends at window start is excluded",
			cue:        Cue{Start: 5, End: 10, Text: "e"},
			w0:         10,
			w1:         20,
			wantedKeep: false,
		},
	}
	for _, tc := range testCases {
		got, keep := Clip(tc.cue, tc.w0, tc.w1)
		require.Equal(t, tc.wantedKeep, keep, tc.desc)
		if keep {
			assert.Equal(t, tc.wantedCue, got, tc.desc)
		}
	}
}

func TestClipSpanningCueInBothSegments(t *testing.T) {
	cue := Cue{Start: 12, End: 22, Text: "X"}
	first, ok := Clip(cue, 10, 20)
	require.True(t, ok)
	assert.Equal(t, Cue{Start: 2, End: 10, Text: "X"}, first)
	second, ok := Clip(cue, 20, 30)
	require.True(t, ok)
	assert.Equal(t, Cue{Start: 0, End: 2, Text: "X"}, second)
}

func TestWriteSegment(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSegment(&buf, []Cue{{Start: 2, End: 10, Text: "X"}})
	require.NoError(t, err)
	wanted := "WEBVTT\n\n1\n00:00:02.000 --> 00:00:10.000\nX\n\n"
	assert.Equal(t, wanted, buf.String())
}

func TestWriteSegmentEmpty(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSegment(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, "WEBVTT\n\n", buf.String())
}

func TestWriteSegmentDeterministic(t *testing.T) {
	cues := []Cue{
		{Start: 0, End: 2, Text: "first"},
		{Start: 1.5, End: 8, Text: "second"},
	}
	var first, second bytes.Buffer
	require.NoError(t, WriteSegment(&first, cues))
	require.NoError(t, WriteSegment(&second, cues))
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestRoundTrip(t *testing.T) {
	cues := []Cue{
		{Start: 0, End: 2.5, Text: "hello"},
		{Start: 2.5, End: 10, Text: "two\nlines"},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteSegment(&buf, cues))
	got, err := Parse(&buf)
	require.NoError(t, err)
	assert.Equal(t, cues, got)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse(strings.NewReader(""))
	assert.Error(t, err)
	_, err = Parse(strings.NewReader("not a vtt file\n"))
	assert.Error(t, err)
	_, err = Parse(strings.NewReader("WEBVTT\n\n1\nbad --> worse\nX\n\n"))
	assert.Error(t, err)
}
