package app

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"strconv"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"

	"github.com/livecap/livecap/pkg/timeline"
	"github.com/livecap/livecap/pkg/tsprobe"
)

const (
	missingPlaylistGrace = 10 // silent polls before warning
	refreshEvery         = 10 // observations with additions between full rebuilds
)

var segmentNameRe = regexp.MustCompile(`^segment(\d+)\.ts$`)

// segObservation is the result of one tracker poll that found changes.
type segObservation struct {
	added   []uint64 // newly observed sequence numbers, ascending
	all     []uint64 // every currently retained sequence number, ascending
	refresh bool     // a periodic full rebuild is due
}

// segmentTracker polls the transcoder's media playlist and converts it
// into a canonical sequence-number view. It never deletes files; retention
// is the transcoder's job.
type segmentTracker struct {
	layout *outputLayout
	tl     *timeline.Timeline
	log    *slog.Logger

	known         map[uint64]bool
	badNames      map[string]bool
	missingPolls  int
	missingWarned bool
	observations  int
	probed        bool
}

func newSegmentTracker(layout *outputLayout, tl *timeline.Timeline, log *slog.Logger) *segmentTracker {
	return &segmentTracker{
		layout:   layout,
		tl:       tl,
		log:      log.With("component", "tracker"),
		known:    make(map[uint64]bool),
		badNames: make(map[string]bool),
	}
}

// poll reads the transcoder playlist once. It returns nil when nothing
// changed since the previous poll.
func (t *segmentTracker) poll() (*segObservation, error) {
	data, err := os.ReadFile(t.layout.videoPlaylist())
	if err != nil {
		if os.IsNotExist(err) {
			t.missingPolls++
			if t.missingPolls > missingPlaylistGrace && !t.missingWarned {
				t.log.Warn("transcoder playlist still missing", "path", t.layout.videoPlaylist(), "polls", t.missingPolls)
				t.missingWarned = true
			}
			return nil, nil
		}
		return nil, fmt.Errorf("read transcoder playlist: %w", err)
	}
	t.missingPolls = 0
	t.missingWarned = false

	pl, err := playlist.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("parse transcoder playlist: %w", err)
	}
	media, ok := pl.(*playlist.Media)
	if !ok {
		return nil, fmt.Errorf("transcoder playlist is not a media playlist")
	}

	seqs := make([]uint64, 0, len(media.Segments))
	for _, seg := range media.Segments {
		m := segmentNameRe.FindStringSubmatch(seg.URI)
		if m == nil {
			if !t.badNames[seg.URI] {
				t.badNames[seg.URI] = true
				t.log.Warn("skipping unrecognized segment name", "uri", seg.URI)
			}
			continue
		}
		seq, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		if !fileExists(t.layout.videoSegment(seq)) {
			continue
		}
		seqs = append(seqs, seq)
	}
	if len(seqs) == 0 {
		return nil, nil
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })

	if !t.tl.OriginSet() {
		t.tl.SetOrigin(seqs[0])
		t.log.Info("stream origin established", "firstSeq", seqs[0])
		t.probeFirstSegment(seqs[0])
	}

	// Forget sequence numbers the transcoder has rotated out.
	for seq := range t.known {
		if seq < seqs[0] {
			delete(t.known, seq)
		}
	}

	var added []uint64
	for _, seq := range seqs {
		if !t.known[seq] {
			t.known[seq] = true
			added = append(added, seq)
		}
	}
	if len(added) == 0 {
		return nil, nil
	}
	t.observations++
	obs := &segObservation{
		added:   added,
		all:     seqs,
		refresh: t.observations%refreshEvery == 0,
	}
	return obs, nil
}

// probeFirstSegment logs the first PTS of the origin segment. The value is
// diagnostic; the utterance offset seam stays at zero until drift
// compensation is needed.
func (t *segmentTracker) probeFirstSegment(seq uint64) {
	if t.probed {
		return
	}
	t.probed = true
	pts, err := tsprobe.FirstPTSSeconds(t.layout.videoSegment(seq))
	if err != nil {
		t.log.Warn("could not probe first segment PTS", "seq", seq, "err", err)
		return
	}
	t.log.Info("first segment PTS", "seq", seq, "pts", pts)
}
