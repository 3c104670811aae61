package app

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livecap/livecap/pkg/captionstore"
	"github.com/livecap/livecap/pkg/logging"
	"github.com/livecap/livecap/pkg/timeline"
	"github.com/livecap/livecap/pkg/vtt"
)

type buildRecord struct {
	lang string
	ok   bool
}

func newTestBuilder(t *testing.T, langs []string) (*vttBuilder, *captionstore.Store, *outputLayout, *[]buildRecord) {
	t.Helper()
	layout := newOutputLayout(t.TempDir())
	require.NoError(t, layout.mkDirs(langs))
	tl := timeline.New(10)
	tl.SetOrigin(5)
	store := captionstore.New(langs, 100, nil)
	var records []buildRecord
	onBuild := func(lang string, ok bool) {
		records = append(records, buildRecord{lang, ok})
	}
	require.NoError(t, logging.InitSlog("debug", logging.LogDiscard))
	b := newVTTBuilder(layout, tl, store, langs, onBuild, slog.Default())
	return b, store, layout, &records
}

func readCues(t *testing.T, path string) []vtt.Cue {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	cues, err := vtt.Parse(bytes.NewReader(data))
	require.NoError(t, err)
	return cues
}

// A cue spanning a segment boundary is clipped into both segments with
// fresh local times.
func TestBuilderSpanningCue(t *testing.T) {
	b, store, layout, _ := newTestBuilder(t, []string{"en"})
	// Origin is seq 5, so seq 6 covers [10, 20) and seq 7 covers [20, 30).
	require.NoError(t, store.Append("en", vtt.Cue{Start: 12, End: 22, Text: "X"}))
	b.handleSegments(&segObservation{added: []uint64{6, 7}, all: []uint64{6, 7}})

	cues6 := readCues(t, layout.subtitleSegment("en", 6))
	require.Len(t, cues6, 1)
	assert.Equal(t, vtt.Cue{Start: 2, End: 10, Text: "X"}, cues6[0])

	cues7 := readCues(t, layout.subtitleSegment("en", 7))
	require.Len(t, cues7, 1)
	assert.Equal(t, vtt.Cue{Start: 0, End: 2, Text: "X"}, cues7[0])
}

// Rebuilding a segment from unchanged store contents produces an
// identical file.
func TestBuilderRebuildIsIdempotent(t *testing.T) {
	b, store, layout, _ := newTestBuilder(t, []string{"en"})
	require.NoError(t, store.Append("en", vtt.Cue{Start: 11, End: 13, Text: "hello"}))
	b.handleSegments(&segObservation{added: []uint64{6}, all: []uint64{6}})

	first, err := os.ReadFile(layout.subtitleSegment("en", 6))
	require.NoError(t, err)
	require.NoError(t, b.buildSegment(6, "en"))
	second, err := os.ReadFile(layout.subtitleSegment("en", 6))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// A segment without overlapping cues still gets a valid header-only file.
func TestBuilderEmptySegment(t *testing.T) {
	b, _, layout, records := newTestBuilder(t, []string{"en", "de"})
	b.handleSegments(&segObservation{added: []uint64{5}, all: []uint64{5}})

	for _, lang := range []string{"en", "de"} {
		data, err := os.ReadFile(layout.subtitleSegment(lang, 5))
		require.NoError(t, err)
		assert.Equal(t, []byte("WEBVTT\n\n"), data)
	}
	assert.Equal(t, []buildRecord{{"en", true}, {"de", true}}, *records)
}

// A finalized cue that overlaps no retained window rebuilds the latest
// known segment so the text still surfaces.
func TestBuilderCueFallbackToLatest(t *testing.T) {
	b, store, layout, _ := newTestBuilder(t, []string{"en"})
	b.handleSegments(&segObservation{added: []uint64{5, 6}, all: []uint64{5, 6}})

	// Seq 6 covers [10, 20); a cue at [100, 101) overlaps nothing.
	require.NoError(t, store.Append("en", vtt.Cue{Start: 100, End: 101, Text: "late"}))
	before, err := os.ReadFile(layout.subtitleSegment("en", 5))
	require.NoError(t, err)
	b.handleCue("en", 100, 101)

	// Seq 5 untouched, seq 6 rebuilt (still without the cue in range).
	after, err := os.ReadFile(layout.subtitleSegment("en", 5))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.FileExists(t, layout.subtitleSegment("en", 6))
}

// A cue near a boundary rebuilds the neighboring segments within slack.
func TestBuilderCueSlackTargets(t *testing.T) {
	b, store, layout, _ := newTestBuilder(t, []string{"en"})
	b.handleSegments(&segObservation{added: []uint64{5, 6, 7}, all: []uint64{5, 6, 7}})
	require.NoError(t, store.Append("en", vtt.Cue{Start: 18, End: 19, Text: "edge"}))

	b.handleCue("en", 18, 19)

	// [18, 19) lies in seq 6's window; with 5 s slack seq 7 ([20, 30))
	// is rebuilt too and stays empty.
	cues6 := readCues(t, layout.subtitleSegment("en", 6))
	require.Len(t, cues6, 1)
	assert.Equal(t, vtt.Cue{Start: 8, End: 9, Text: "edge"}, cues6[0])
	assert.Empty(t, readCues(t, layout.subtitleSegment("en", 5)))
	assert.Empty(t, readCues(t, layout.subtitleSegment("en", 7)))
}

// The staging playlist never advertises a file that has not been written
// yet: at every point where a build completes, everything the playlist
// lists must already exist on disk.
func TestBuilderStagingPlaylistNeverAheadOfFiles(t *testing.T) {
	b, _, layout, _ := newTestBuilder(t, []string{"en"})
	b.onBuild = func(lang string, ok bool) {
		require.True(t, ok)
		data, err := os.ReadFile(layout.subtitlePlaylist(lang))
		if os.IsNotExist(err) {
			return
		}
		require.NoError(t, err)
		pl, err := playlist.Unmarshal(data)
		require.NoError(t, err)
		media, isMedia := pl.(*playlist.Media)
		require.True(t, isMedia)
		for _, seg := range media.Segments {
			assert.FileExists(t, filepath.Join(layout.subtitlesDir(lang), seg.URI))
		}
	}

	b.handleSegments(&segObservation{added: []uint64{5, 6, 7}, all: []uint64{5, 6, 7}})

	media := parseMedia(t, layout.subtitlePlaylist("en"))
	require.Len(t, media.Segments, 3)
	for _, seg := range media.Segments {
		assert.FileExists(t, filepath.Join(layout.subtitlesDir("en"), seg.URI))
	}
}

func TestBuilderStagingPlaylist(t *testing.T) {
	b, _, layout, _ := newTestBuilder(t, []string{"en"})
	b.handleSegments(&segObservation{added: []uint64{6, 7}, all: []uint64{6, 7}})

	data, err := os.ReadFile(layout.subtitlePlaylist("en"))
	require.NoError(t, err)
	s := string(data)
	assert.Contains(t, s, "#EXT-X-MEDIA-SEQUENCE:1")
	assert.Contains(t, s, "segment6.vtt")
	assert.Contains(t, s, "segment7.vtt")
	assert.NotContains(t, s, "#EXT-X-ENDLIST")
}
