package app

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livecap/livecap/pkg/logging"
	"github.com/livecap/livecap/pkg/timeline"
)

// writeTranscoderState creates a media playlist plus segment files the way
// the transcoder would.
func writeTranscoderState(t *testing.T, layout *outputLayout, seqs []uint64) {
	t.Helper()
	data, err := buildMediaPlaylist(seqs, 10*time.Second, int(seqs[0]), segmentFileName)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(layout.videoPlaylist(), data, 0644))
	for _, seq := range seqs {
		require.NoError(t, os.WriteFile(layout.videoSegment(seq), []byte{0x47}, 0644))
	}
}

func newTestTracker(t *testing.T) (*segmentTracker, *outputLayout, *timeline.Timeline) {
	t.Helper()
	layout := newOutputLayout(t.TempDir())
	require.NoError(t, layout.mkDirs([]string{"en"}))
	tl := timeline.New(10)
	require.NoError(t, logging.InitSlog("debug", logging.LogDiscard))
	return newSegmentTracker(layout, tl, slog.Default()), layout, tl
}

func TestTrackerMissingPlaylist(t *testing.T) {
	tr, _, tl := newTestTracker(t)
	for i := 0; i < 12; i++ {
		obs, err := tr.poll()
		require.NoError(t, err)
		assert.Nil(t, obs)
	}
	assert.False(t, tl.OriginSet())
}

func TestTrackerFirstObservationSetsOrigin(t *testing.T) {
	tr, layout, tl := newTestTracker(t)
	writeTranscoderState(t, layout, []uint64{5, 6, 7})

	obs, err := tr.poll()
	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.Equal(t, []uint64{5, 6, 7}, obs.added)
	assert.Equal(t, []uint64{5, 6, 7}, obs.all)

	first, ok := tl.FirstSeq()
	require.True(t, ok)
	assert.Equal(t, uint64(5), first)

	w0, w1 := tl.SegmentWindow(6)
	assert.Equal(t, 10.0, w0)
	assert.Equal(t, 20.0, w1)
}

func TestTrackerDetectsAdditionsAndRotation(t *testing.T) {
	tr, layout, _ := newTestTracker(t)
	writeTranscoderState(t, layout, []uint64{5, 6})
	_, err := tr.poll()
	require.NoError(t, err)

	// Nothing new: no observation.
	obs, err := tr.poll()
	require.NoError(t, err)
	assert.Nil(t, obs)

	// Transcoder rotated 5 out and added 7 and 8.
	writeTranscoderState(t, layout, []uint64{6, 7, 8})
	obs, err = tr.poll()
	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.Equal(t, []uint64{7, 8}, obs.added)
	assert.Equal(t, []uint64{6, 7, 8}, obs.all)
	assert.False(t, tr.known[5])
}

func TestTrackerSkipsBadNamesAndMissingFiles(t *testing.T) {
	tr, layout, _ := newTestTracker(t)
	writeTranscoderState(t, layout, []uint64{5, 6})

	// Append a segment entry whose file does not exist and one whose name
	// does not match the expected pattern.
	data, err := os.ReadFile(layout.videoPlaylist())
	require.NoError(t, err)
	data = append(data, []byte("#EXTINF:10.00000,\nsegment99.ts\n#EXTINF:10.00000,\nintro.ts\n")...)
	require.NoError(t, os.WriteFile(layout.videoPlaylist(), data, 0644))

	obs, err := tr.poll()
	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.Equal(t, []uint64{5, 6}, obs.all)
	assert.True(t, tr.badNames["intro.ts"])
}

func TestTrackerPeriodicRefresh(t *testing.T) {
	tr, layout, _ := newTestTracker(t)
	var refreshes int
	for i := 0; i < 2*refreshEvery; i++ {
		writeTranscoderState(t, layout, []uint64{uint64(5 + i)})
		obs, err := tr.poll()
		require.NoError(t, err)
		require.NotNil(t, obs)
		if obs.refresh {
			refreshes++
		}
	}
	assert.Equal(t, 2, refreshes)
}
